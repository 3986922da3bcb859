package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxRecipientEmails caps how many valid addresses a fiscal note keeps.
const MaxRecipientEmails = 2

// maxSecondEmailLen rejects an overlong second address.
const maxSecondEmailLen = 100

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	emailSeparator = regexp.MustCompile(`[;,\s]+`)
)

// ValidEmail reports whether addr is a complete, syntactically valid address.
func ValidEmail(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	return addr != "" && !truncatedEmail(addr) && emailPattern.MatchString(addr)
}

func truncatedEmail(addr string) bool {
	if strings.HasSuffix(addr, ".") || strings.Count(addr, "@") != 1 {
		return true
	}
	_, domain, _ := strings.Cut(addr, "@")
	return domain == "" || !strings.Contains(domain, ".")
}

// SplitEmails splits a raw recipient field on ';', ',' or whitespace and
// sorts each lowercased address into valid or invalid. At most
// MaxRecipientEmails valid addresses are kept; an overlong second address is
// invalid and any further valid address is dropped.
func SplitEmails(raw string) (valid, invalid []string) {
	return ClassifyEmails(emailSeparator.Split(strings.TrimSpace(raw), -1))
}

// ClassifyEmails applies the SplitEmails rules to an already split list.
func ClassifyEmails(candidates []string) (valid, invalid []string) {
	valid = []string{}
	invalid = []string{}
	for _, candidate := range candidates {
		addr := strings.ToLower(strings.TrimSpace(candidate))
		if addr == "" {
			continue
		}
		if !ValidEmail(addr) {
			invalid = append(invalid, addr)
			continue
		}
		switch len(valid) {
		case 0:
			valid = append(valid, addr)
		case 1:
			if utf8.RuneCountInString(addr) <= maxSecondEmailLen {
				valid = append(valid, addr)
			} else {
				invalid = append(invalid, addr)
			}
		}
	}
	return valid, invalid
}

// DedupeEmails trims, lowercases and removes repeated addresses while keeping
// the first occurrence order.
func DedupeEmails(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
