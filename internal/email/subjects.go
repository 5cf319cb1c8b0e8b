package email

const (
	subjectReminderFmt     = "Lead protection reminder: %s"
	subjectGraceStartedFmt = "Lead protection grace period started: %s"
	subjectExpiredFmt      = "Lead protection expired: %s"
)
