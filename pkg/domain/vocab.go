package domain

// Status is the stored numeric lifecycle code shared by sources, notebooks
// and collaborators. Zero means unset.
type Status int

const (
	StatusActive   Status = 1
	StatusArchived Status = 2
	StatusTest     Status = 99
)

var statusNames = map[Status]string{
	StatusActive:   "active",
	StatusArchived: "archived",
	StatusTest:     "test",
}

// ParseStatus maps a symbolic status name to its code.
func ParseStatus(name string) (Status, bool) {
	for code, n := range statusNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

func (s Status) String() string { return statusNames[s] }

// DocumentType is the schema.org CreativeWork subtype of a source.
type DocumentType string

var documentTypes = map[DocumentType]struct{}{
	"Article": {}, "Blog": {}, "Book": {}, "Chapter": {}, "Collection": {},
	"Comment": {}, "Conversation": {}, "Course": {}, "Dataset": {}, "Drawing": {},
	"Episode": {}, "Manuscript": {}, "Map": {}, "MediaObject": {}, "MusicRecording": {},
	"Painting": {}, "Photograph": {}, "Play": {}, "Poster": {}, "PublicationIssue": {},
	"PublicationVolume": {}, "Review": {}, "ShortStory": {}, "Thesis": {},
	"VisualArtwork": {}, "WebContent": {},
}

func (t DocumentType) Valid() bool {
	_, ok := documentTypes[t]
	return ok
}

// Allow-list rules for metadata properties, in validator tag syntax.
const (
	// BookFormatRule admits a schema.org BookFormatType.
	BookFormatRule = "oneof=AudiobookFormat EBook GraphicNovel Hardcover Paperback"
	DirectionRule  = "oneof=ltr rtl"
)

// Role is the relation of an attribution to its source.
type Role string

const (
	RoleAuthor          Role = "author"
	RoleEditor          Role = "editor"
	RoleContributor     Role = "contributor"
	RoleCreator         Role = "creator"
	RoleIllustrator     Role = "illustrator"
	RolePublisher       Role = "publisher"
	RoleTranslator      Role = "translator"
	RoleCopyrightHolder Role = "copyrightHolder"
)

// Roles is the closed set of attribution roles, in output order.
var Roles = []Role{
	RoleAuthor, RoleEditor, RoleContributor, RoleCreator,
	RoleIllustrator, RolePublisher, RoleTranslator, RoleCopyrightHolder,
}

// Motivation is the W3C annotation motivation of a note.
type Motivation string

var motivations = map[Motivation]struct{}{
	"bookmarking": {}, "commenting": {}, "describing": {}, "editing": {},
	"highlighting": {}, "linking": {}, "replying": {}, "tagging": {},
}

func (m Motivation) Valid() bool {
	_, ok := motivations[m]
	return ok
}
