package pool

import "errors"

var (
	ErrNoSuchPool                = errors.New("no such pool")
	ErrPoolExists                = errors.New("pool already exists")
	ErrInvalidTrancheStructure   = errors.New("invalid tranche structure")
	ErrMinEpochTimeHasNotPassed  = errors.New("minimum epoch time has not passed")
	ErrNAVTooOld                 = errors.New("nav is too old")
	ErrNoNAV                     = errors.New("no nav available")
	ErrChallengeTimeHasNotPassed = errors.New("challenge time has not passed")
	ErrInSubmissionPeriod        = errors.New("pool is in a submission period")
	ErrNotInSubmissionPeriod     = errors.New("pool is not in a submission period")
	ErrInvalidSolution           = errors.New("invalid solution")
	ErrNoSolutionAvailable       = errors.New("no solution available")
	ErrWipedOut                  = errors.New("tranche has been wiped out")
	ErrInsufficientCurrency      = errors.New("insufficient currency for redemptions")
	ErrNotNewBestSubmission      = errors.New("not a new best submission")
	ErrInsufficientReserve       = errors.New("insufficient pool reserve")
	ErrNotAuthorized             = errors.New("account is not authorized")
)
