package model

import "fmt"

// Grade is the user's assessment of recall quality for a single review.
type Grade int

const (
	Again Grade = iota + 1 // failed to recall
	Hard                   // recalled with significant difficulty
	Good                   // recalled with some effort
	Easy                   // recalled effortlessly
)

var gradeNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// String returns the lowercase name of the grade.
func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// IsValid reports whether g is one of the four defined grades.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// ParseGrade converts a grade name ("again", "hard", "good", "easy") to a Grade.
func ParseGrade(s string) (Grade, error) {
	for g := Again; g <= Easy; g++ {
		if gradeNames[g] == s {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown grade %q", s)
}
