package util

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmailAddress reports whether s looks like a deliverable address
func IsEmailAddress(s string) bool {
	return emailRegex.MatchString(s)
}

// ParseEmails extracts email addresses from CSV or plain text content.
// Every comma-separated field on every line is considered; anything that
// looks like an address is kept, everything else (headers, names) is skipped.
func ParseEmails(fileContent string) []string {
	lines := strings.Split(fileContent, "\n")
	emails := []string{}

	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" {
			continue
		}

		for _, part := range strings.Split(trimmedLine, ",") {
			trimmedPart := strings.TrimSpace(part)
			if IsEmailAddress(trimmedPart) {
				emails = append(emails, trimmedPart)
			}
		}
	}

	return emails
}
