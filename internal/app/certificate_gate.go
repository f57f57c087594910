package app

import "training-gate-service/internal/domain"

// IsEligible reports whether a certificate may be issued for the record's pair.
func IsEligible(record domain.AccessRecord) bool {
	return record.FeedbackDone
}

// CheckEligible is called right before rendering; it fails with InvalidState until feedback is in.
func CheckEligible(record domain.AccessRecord) error {
	if !IsEligible(record) {
		return domain.InvalidState("feedback not submitted: please submit feedback first")
	}
	return nil
}
