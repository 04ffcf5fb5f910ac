package members

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Member is the application-facing shape of a member record. Storage keeps
// the name split (first/last/display); the app sees the canonical
// "LASTNAME, FIRSTNAME" string and parses it on demand.
type Member struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Anniversary *time.Time `json:"anniversary,omitempty"`
	Contact     string     `json:"contact"`
	Email       string     `json:"email"`
	Suburb      string     `json:"suburb"`
	MemberSince string     `json:"memberSince"`
	CreatedAt   time.Time  `json:"createdAt"`
	CreatedBy   string     `json:"createdBy"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
}

// ParsedName holds the display components of a canonical member name.
type ParsedName struct {
	FirstName string
	LastName  string
	FullName  string
}

func toProperCase(text string) string {
	if text == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(text)
	return strings.ToUpper(string(r)) + strings.ToLower(text[size:])
}

// ParseName parses "LASTNAME, FIRSTNAME" into components. A name without a
// comma is treated as a bare last name, matching the original client.
func ParseName(name string) ParsedName {
	if name == "" || !strings.Contains(name, ",") {
		return ParsedName{FirstName: "", LastName: name, FullName: name}
	}

	parts := strings.SplitN(name, ",", 2)
	lastName := toProperCase(strings.TrimSpace(parts[0]))
	firstName := toProperCase(strings.TrimSpace(parts[1]))

	return ParsedName{
		FirstName: firstName,
		LastName:  lastName,
		FullName:  strings.TrimSpace(firstName + " " + lastName),
	}
}

// Initials returns the two-letter avatar initials for a canonical name.
func Initials(name string) string {
	parsed := ParseName(name)
	if parsed.FirstName != "" && parsed.LastName != "" {
		return strings.ToUpper(parsed.FirstName[:1] + parsed.LastName[:1])
	}
	if parsed.LastName != "" {
		n := len(parsed.LastName)
		if n > 2 {
			n = 2
		}
		return strings.ToUpper(parsed.LastName[:n])
	}
	return "??"
}

// Age returns whole years between birthday and now, zero when unknown.
func Age(birthday *time.Time, now time.Time) int {
	if birthday == nil {
		return 0
	}
	age := now.Year() - birthday.Year()
	if now.Month() < birthday.Month() ||
		(now.Month() == birthday.Month() && now.Day() < birthday.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// SortByName orders members by last name then first name, leaving the input
// untouched.
func SortByName(list []Member) []Member {
	sorted := make([]Member, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := ParseName(sorted[i].Name)
		b := ParseName(sorted[j].Name)
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})
	return sorted
}

// CanonicalName builds the stored "LASTNAME, FIRSTNAME" form from split
// fields, falling back to the display name for legacy records.
func CanonicalName(firstName, lastName, displayName string) string {
	if lastName != "" && firstName != "" {
		return strings.ToUpper(lastName + ", " + firstName)
	}
	return displayName
}
