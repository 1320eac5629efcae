package model

// Profile slots. Every user may keep up to four independent profiles; slot 1
// is created at signup and is the one shown in list views.
const (
	MinProfileN     = 1
	MaxProfileN     = 4
	DefaultProfileN = 1
)

// ValidProfileN reports whether n names an existing slot.
func ValidProfileN(n int) bool {
	return n >= MinProfileN && n <= MaxProfileN
}

// Profile is the full document stored in one slot.
type Profile struct {
	TagferID     string            `json:"tagferId,omitempty"`
	ProfileName  string            `json:"profileName,omitempty"`
	FullName     string            `json:"fullName,omitempty"`
	PhotoURL     string            `json:"photoURL,omitempty"`
	Bio          string            `json:"bio,omitempty"`
	Experience   Experience        `json:"experience,omitzero"`
	Emails       map[string]string `json:"emails,omitempty"`
	PhoneNumbers map[string]string `json:"phoneNumbers,omitempty"`
	Socials      map[string]string `json:"socials,omitempty"`
}

// Experience holds the professional part of a profile.
type Experience struct {
	JobTitle    string `json:"jobTitle,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
}

// ProfileUpdate is a partial profile. Nil fields are left untouched; map
// entries are merged key by key and an empty value removes the key.
//
// PhotoBytes is a base64 encoded JPEG; when present it is uploaded and the
// resulting URL replaces PhotoURL.
type ProfileUpdate struct {
	ProfileName  *string           `mapstructure:"profileName"`
	FullName     *string           `mapstructure:"fullName"`
	PhotoURL     *string           `mapstructure:"photoURL"`
	PhotoBytes   *string           `mapstructure:"photoBytes"`
	Bio          *string           `mapstructure:"bio"`
	Experience   *ExperienceUpdate `mapstructure:"experience"`
	Emails       map[string]string `mapstructure:"emails"`
	PhoneNumbers map[string]string `mapstructure:"phoneNumbers"`
	Socials      map[string]string `mapstructure:"socials"`
}

// ExperienceUpdate is the partial form of Experience.
type ExperienceUpdate struct {
	JobTitle    *string `mapstructure:"jobTitle"`
	CompanyName *string `mapstructure:"companyName"`
}

// Apply merges u into p.
func (p *Profile) Apply(u ProfileUpdate) {
	setString(&p.ProfileName, u.ProfileName)
	setString(&p.FullName, u.FullName)
	setString(&p.PhotoURL, u.PhotoURL)
	setString(&p.Bio, u.Bio)
	if u.Experience != nil {
		setString(&p.Experience.JobTitle, u.Experience.JobTitle)
		setString(&p.Experience.CompanyName, u.Experience.CompanyName)
	}
	p.Emails = mergeMap(p.Emails, u.Emails)
	p.PhoneNumbers = mergeMap(p.PhoneNumbers, u.PhoneNumbers)
	p.Socials = mergeMap(p.Socials, u.Socials)
}

// Lite reduces the profile to the summary used in list views.
func (p *Profile) Lite() LiteProfile {
	return LiteProfile{
		TagferID:    p.TagferID,
		FullName:    p.FullName,
		JobTitle:    p.Experience.JobTitle,
		CompanyName: p.Experience.CompanyName,
		PhotoURL:    p.PhotoURL,
	}
}

// LiteProfile is the reduced profile shown in suggestion, request and
// connection lists. ProfileN is set when the summary describes a graph edge.
type LiteProfile struct {
	TagferID    string `json:"tagferId"`
	FullName    string `json:"fullName"`
	JobTitle    string `json:"jobTitle"`
	CompanyName string `json:"companyName"`
	PhotoURL    string `json:"photoURL"`
	ProfileN    int    `json:"profileN,omitempty"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}
