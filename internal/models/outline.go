package models

// CourseOutline is a course with its modules and their contents in order.
type CourseOutline struct {
	Course  Course          `json:"course"`
	Modules []ModuleOutline `json:"modules"`
}

// ModuleOutline is a module and its ordered contents with resolved items.
type ModuleOutline struct {
	Module   Module           `json:"module"`
	Contents []ContentOutline `json:"contents"`
}

// ContentOutline is a content row with its item. Missing is set when the
// referenced item no longer exists.
type ContentOutline struct {
	ID      string       `json:"id"`
	Order   int          `json:"order"`
	Ref     ItemRef      `json:"ref"`
	Item    ItemEnvelope `json:"item"`
	Missing bool         `json:"missing,omitempty"`
}
