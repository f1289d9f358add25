package entity

import "math/big"

// VerificationResult is the outcome of a feed or protocol read-and-compare.
// A mismatch is reported through Matches, never as an error. Success is false
// when the read itself failed; Message then carries the reason.
type VerificationResult struct {
	Matches  bool
	Success  bool
	Expected *big.Int
	Actual   *big.Int
	Message  string
}
