package object

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is an author/committer line: a display name, an email-shaped
// identity and a point in time. CommitEmitter always uses the same
// Signature for both author and committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// String renders the signature the way it appears inside a commit object:
// "Name <email> <unix-seconds> <+zone>".
func (s Signature) String() string {
	_, offset := s.When.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d",
		s.Name, s.Email, s.When.Unix(), sign, offset/3600, (offset/60)%60)
}

// ParseSignature parses the format produced by String.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	lt := strings.IndexByte(s, '<')
	gt := strings.IndexByte(s, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return sig, fmt.Errorf("object: malformed signature %q", s)
	}
	sig.Name = strings.TrimSpace(s[:lt])
	sig.Email = s[lt+1 : gt]

	rest := strings.TrimSpace(s[gt+1:])
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return sig, fmt.Errorf("object: malformed signature timestamp %q", s)
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return sig, err
	}
	loc := time.UTC
	if len(fields) > 1 && len(fields[1]) == 5 {
		signCh := fields[1][0]
		hh, _ := strconv.Atoi(fields[1][1:3])
		mm, _ := strconv.Atoi(fields[1][3:5])
		offset := hh*3600 + mm*60
		if signCh == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	sig.When = time.Unix(secs, 0).In(loc)
	return sig, nil
}
