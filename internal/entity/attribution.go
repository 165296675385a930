package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AttributionKind tags the Attribution variant.
type AttributionKind int

const (
	AttributionName AttributionKind = iota
	AttributionContact
)

// Attribution credits a creator or publisher either by plain name or by a contact record.
type Attribution struct {
	Kind     AttributionKind
	Name     string
	Email    string
	Homepage string
}

// NameAttribution builds the plain-name variant.
func NameAttribution(name string) Attribution {
	return Attribution{Kind: AttributionName, Name: strings.TrimSpace(name)}
}

// ContactAttribution builds the contact variant. Without email and homepage it degrades to a name.
func ContactAttribution(name, email, homepage string) Attribution {
	a := Attribution{
		Kind:     AttributionContact,
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Homepage: strings.TrimSpace(homepage),
	}
	if a.Email == "" && a.Homepage == "" {
		a.Kind = AttributionName
	}
	return a
}

func (a Attribution) String() string {
	if a.Kind == AttributionName || a.Email == "" {
		return a.Name
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

type contactJSON struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Homepage string `json:"url,omitempty"`
}

func (a Attribution) MarshalJSON() ([]byte, error) {
	if a.Kind == AttributionName {
		return json.Marshal(a.Name)
	}
	return json.Marshal(contactJSON{Name: a.Name, Email: a.Email, Homepage: a.Homepage})
}

func (a *Attribution) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*a = NameAttribution(name)
		return nil
	}
	var c struct {
		contactJSON
		Homepage string `json:"homepage"`
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	homepage := c.contactJSON.Homepage
	if homepage == "" {
		homepage = c.Homepage
	}
	*a = ContactAttribution(c.Name, c.Email, homepage)
	return nil
}

// Attributions is the creator/publisher list. On the wire it accepts a single string, a single
// record, or an array mixing both.
type Attributions []Attribution

func (as *Attributions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*as = nil
		return nil
	}
	if len(data) > 0 && data[0] != '[' {
		var one Attribution
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*as = Attributions{one}
		return nil
	}
	var many []Attribution
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*as = many
	return nil
}

// Names returns the display form of every attribution.
func (as Attributions) Names() []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.String())
	}
	return out
}
