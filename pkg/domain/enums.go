package domain

// Severity, Gap and Alignment travel as their upper-case names.
type Severity string

const (
	SeverityDefault Severity = "DEFAULT"
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityDefault, SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

type Gap string

const (
	GapNone   Gap = "NONE"
	GapSmall  Gap = "SMALL"
	GapMedium Gap = "MEDIUM"
	GapLarge  Gap = "LARGE"
)

func (g Gap) Valid() bool {
	switch g {
	case GapNone, GapSmall, GapMedium, GapLarge:
		return true
	}
	return false
}

type Alignment string

const (
	AlignStart   Alignment = "START"
	AlignCenter  Alignment = "CENTER"
	AlignEnd     Alignment = "END"
	AlignStretch Alignment = "STRETCH"
)

func (a Alignment) Valid() bool {
	switch a {
	case AlignStart, AlignCenter, AlignEnd, AlignStretch:
		return true
	}
	return false
}
