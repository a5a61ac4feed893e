package services

import "errors"

var (
	ErrInvalidEmail            = errors.New("invalid email")
	ErrDuplicateEmail          = errors.New("email already registered")
	ErrDuplicateUsername       = errors.New("username already taken")
	ErrUserNotFound            = errors.New("user not found")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique affiliate code")

	ErrUnknownAffiliateCode       = errors.New("invalid affiliate code")
	ErrUnknownAffiliate           = errors.New("unknown affiliate")
	ErrSelfReferral               = errors.New("cannot refer yourself")
	ErrDuplicateSignupAttribution = errors.New("signup already attributed to this affiliate")
	ErrUnknownReferral            = errors.New("no signup recorded for this referral")
	ErrNotReferred                = errors.New("user was not referred by an affiliate")
	ErrDuplicateCharge            = errors.New("charge already processed")

	ErrInvalidChargeAmount   = errors.New("charge amount must not be negative")
	ErrInvalidCommissionRate = errors.New("commission rate must be between 0 and 1")

	ErrBelowPayoutThreshold    = errors.New("balance is below the payout threshold")
	ErrPayoutAlreadyRequested  = errors.New("a payout request is already open")
	ErrPayoutNotFound          = errors.New("payout not found")
	ErrInvalidPayoutTransition = errors.New("payout is not awaiting payment")
)
