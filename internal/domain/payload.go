package domain

// SinglePayload is the payload of an UPLOAD_SINGLE job.
type SinglePayload struct {
	File FileStagingRef `json:"file"`
}

// MultiplePayload is the payload of an UPLOAD_MULTIPLE job.
type MultiplePayload struct {
	Files   []FileStagingRef `json:"files"`
	Options UploadOptions    `json:"options"`
}

// FieldFiles holds the staged files submitted under one form field.
type FieldFiles struct {
	Field string           `json:"field"`
	Files []FileStagingRef `json:"files"`
}

// FieldsPayload is the payload of an UPLOAD_FIELDS job. Fields keep the order
// in which they were submitted.
type FieldsPayload struct {
	Fields []FieldFiles `json:"fields"`
}

// DeletePayload is the payload of a DELETE_FILE job.
type DeletePayload struct {
	Reference string `json:"filename"`
}

// ImageField is the form field name that implies image compression.
const ImageField = "image"

// OptionsForField returns the upload options implied by a form field name.
func OptionsForField(field string, base UploadOptions) UploadOptions {
	if field == ImageField {
		base.Compress = true
	}
	return base
}

// StagedRefs returns every staging reference carried by a payload, in
// processing order.
func (p SinglePayload) StagedRefs() []FileStagingRef {
	return []FileStagingRef{p.File}
}

// StagedRefs returns every staging reference carried by a payload, in
// processing order.
func (p MultiplePayload) StagedRefs() []FileStagingRef {
	return p.Files
}

// StagedRefs returns every staging reference carried by a payload, in
// processing order.
func (p FieldsPayload) StagedRefs() []FileStagingRef {
	var refs []FileStagingRef
	for _, f := range p.Fields {
		refs = append(refs, f.Files...)
	}
	return refs
}

// RawField holds the raw uploads submitted under one form field.
type RawField struct {
	Field string
	Files []File
}

// RawPayload is what the request layer hands to the producer. Which members
// are read depends on the job type.
type RawPayload struct {
	// File is the upload for UPLOAD_SINGLE.
	File *File

	// Files are the uploads for UPLOAD_MULTIPLE.
	Files []File

	// Fields are the uploads for UPLOAD_FIELDS, in submission order.
	Fields []RawField

	// RequiredFields lists field names that must carry at least one file.
	RequiredFields []string

	// Reference is the provider reference for DELETE_FILE.
	Reference string

	// Options apply to every staged file.
	Options UploadOptions
}
