package content

import (
	"time"
)

// Version is one prior content state of a record.
type Version struct {
	Hash      string    `json:"hash"      bson:"hash"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	Changes   string    `json:"changes"   bson:"changes"`
}

// ChangeContentUpdated is the change note recorded for every superseded hash.
const ChangeContentUpdated = "Content updated"

// ArticleGeneration is an article cached at one depth.
type ArticleGeneration struct {
	Depth       int       `json:"depth"       bson:"depth"`
	Content     string    `json:"content"     bson:"content"`
	GeneratedAt time.Time `json:"generatedAt" bson:"generatedAt"`
}

// Citation is a numbered source parsed from a generated article.
type Citation struct {
	Number int    `json:"number" bson:"number"`
	Text   string `json:"text"   bson:"text"`
	URL    string `json:"url"    bson:"url"`
}

// Existing is the cached-state projection returned by an existence check.
type Existing struct {
	ContentHash         string
	HasArticle          bool
	HasThumbnail        bool
	ThumbnailFailures   int
	ThumbnailSearchedAt *time.Time
}

// Stored is a persisted record as read back from a store.
type Stored struct {
	ID                 string
	Kind               Kind
	Title              string
	Description        string
	FullText           string
	URL                string
	Author             string
	ContentHash        string
	AIGeneratedArticle string
	ThumbnailURL       string
	ArticleGenerations []ArticleGeneration
	Citations          []Citation
	Versions           []Version
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Generation returns the cached article at depth, if any.
func (s *Stored) Generation(depth int) (ArticleGeneration, bool) {
	for _, g := range s.ArticleGenerations {
		if g.Depth == depth {
			return g, true
		}
	}
	return ArticleGeneration{}, false
}

// EngagementMetrics are the synthesized feed counters shown on a video.
type EngagementMetrics struct {
	Likes    int `json:"likes"    bson:"likes"`
	Comments int `json:"comments" bson:"comments"`
	Shares   int `json:"shares"   bson:"shares"`
}

// Video is the short-feed card derived from a stored record.
type Video struct {
	ID                string
	ContentType       Kind
	ContentID         string
	Title             string
	Description       string
	ImageData         []byte
	ImageMimeType     string
	ImageWidth        int
	ImageHeight       int
	ThumbnailURL      string
	Author            string
	Engagement        EngagementMetrics
	SourceContentHash string
}

// KindStats summarizes one table for the stats command.
type KindStats struct {
	Kind          Kind
	Total         int64
	WithArticle   int64
	WithThumbnail int64
	WithVideo     int64
}
