package intake

import (
	"encoding/json"

	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
)

// ImageState distinguishes "not decided yet" from "declined".
type ImageState int

const (
	ImageUnset ImageState = iota
	ImageDeclined
	ImageAttached
)

func (s ImageState) String() string {
	switch s {
	case ImageDeclined:
		return "declined"
	case ImageAttached:
		return "attached"
	default:
		return "unset"
	}
}

type ImageChoice struct {
	State ImageState
	Ref   string
}

func Attached(ref string) ImageChoice { return ImageChoice{State: ImageAttached, Ref: ref} }

func Declined() ImageChoice { return ImageChoice{State: ImageDeclined} }

func (c ImageChoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State string `json:"state"`
		Ref   string `json:"ref,omitempty"`
	}{c.State.String(), c.Ref})
}

// Draft is the incident being assembled. It is submittable once
// description, location and departments are all present.
type Draft struct {
	Description string                 `json:"description"`
	Location    string                 `json:"location"`
	Departments incident.DepartmentSet `json:"departments"`
	Image       ImageChoice            `json:"image"`
}

// Missing names the required fields that are still empty, in payload order.
func (d Draft) Missing() []string {
	var out []string
	if d.Description == "" {
		out = append(out, "description")
	}
	if d.Location == "" {
		out = append(out, "location")
	}
	if d.Departments.Empty() {
		out = append(out, "department classification")
	}
	return out
}

func (d Draft) Submittable() bool { return len(d.Missing()) == 0 }

func (d Draft) IsZero() bool {
	return d.Description == "" && d.Location == "" && d.Departments.Empty() && d.Image.State == ImageUnset
}

func (d Draft) Clone() Draft {
	d.Departments = d.Departments.Clone()
	return d
}

// Request builds the create payload. image_url is only sent for an
// attached image.
func (d Draft) Request() incidentapi.CreateRequest {
	req := incidentapi.CreateRequest{
		Description:              d.Description,
		Location:                 d.Location,
		DepartmentClassification: d.Departments.String(),
	}
	if d.Image.State == ImageAttached && d.Image.Ref != "" {
		ref := d.Image.Ref
		req.ImageURL = &ref
	}
	return req
}
