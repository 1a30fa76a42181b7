package scoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"jobdigest/internal/model"
)

// maxCoreLen bounds the unstructured-description fallback. Requirements
// typically appear early in a posting, so truncation loses little signal.
const maxCoreLen = 2000

// minSectionLen filters out header-only matches with no real body.
const minSectionLen = 20

var keepHeader = regexp.MustCompile(`(?i)^(requirements?|qualifications?|required skills?|must have|you must|you should|you have|responsibilities|duties|what you(?:'ll| will) do|role responsibilities|your role|skills?|technical skills?|technologies?|tech stack|tools?|experience|years of experience|background|about (?:the|this) (?:role|position|job))\b`)

var stripHeader = regexp.MustCompile(`(?i)^(benefits?|perks?|what we offer|compensation|we offer|why (?:join|work at)|about (?:us|our company|the company)|company culture|our culture|our values|diversity|equal opportunity|eeo statement)\b`)

// genericHeader ends a section at the next "Something:" line even when that
// label is not in either vocabulary.
var genericHeader = regexp.MustCompile(`^[A-Z][a-z]+:`)

type sectionKind int

const (
	sectionNeutral sectionKind = iota
	sectionKeep
	sectionStrip
)

type section struct {
	kind sectionKind
	text string
}

// ExtractJobCore builds the per-job prompt payload: title, company, location
// and salary metadata followed by the parts of the description that matter
// for fit. Requirement-like sections are kept, benefits and culture sections
// are dropped, and descriptions with no recognizable structure fall back to a
// stripped-and-truncated copy.
func ExtractJobCore(job *model.Job) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Job Title: %s\nCompany: %s", job.Title, job.Company)
	if job.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", job.Location)
	}
	if job.Salary.Min != nil || job.Salary.Max != nil {
		parts := make([]string, 0, 2)
		if job.Salary.Min != nil {
			parts = append(parts, formatMoney(*job.Salary.Min))
		}
		if job.Salary.Max != nil {
			parts = append(parts, formatMoney(*job.Salary.Max))
		}
		fmt.Fprintf(&b, "\nSalary: %s", strings.Join(parts, " - "))
	}

	b.WriteString("\n\nJob Description:\n")

	sections := splitSections(job.Description)

	var kept []string
	for _, s := range sections {
		if s.kind == sectionKeep && len(s.text) > minSectionLen {
			kept = append(kept, s.text)
		}
	}

	if len(kept) > 0 {
		b.WriteString(strings.Join(kept, "\n\n"))
		return b.String()
	}

	var cleaned []string
	for _, s := range sections {
		if s.kind != sectionStrip {
			cleaned = append(cleaned, s.text)
		}
	}
	b.WriteString(truncateRunes(strings.TrimSpace(strings.Join(cleaned, "\n\n")), maxCoreLen))
	return b.String()
}

// splitSections walks the description line by line. A line matching one of the
// header vocabularies starts a classified section; a blank line or a generic
// "Something:" line ends it. Text outside any classified section stays
// neutral so the fallback path can keep it.
func splitSections(desc string) []section {
	var (
		out     []section
		current []string
		kind    = sectionNeutral
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			out = append(out, section{kind: kind, text: text})
		}
		current = current[:0]
	}

	for _, line := range strings.Split(desc, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
			kind = sectionNeutral
		case keepHeader.MatchString(trimmed):
			flush()
			kind = sectionKeep
			current = append(current, line)
		case stripHeader.MatchString(trimmed):
			flush()
			kind = sectionStrip
			current = append(current, line)
		case genericHeader.MatchString(trimmed) && kind != sectionNeutral:
			flush()
			kind = sectionNeutral
			current = append(current, line)
		default:
			current = append(current, line)
		}
	}
	flush()

	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// formatMoney renders an annual figure with thousands separators, e.g.
// "$120,000".
func formatMoney(v int) string {
	s := strconv.Itoa(v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
