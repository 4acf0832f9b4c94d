// Package export assembles the full JSON data export a user is entitled
// to under GDPR Article 20.
package export

import (
	"context"
	"time"
)

const dataVersion = "1.0"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Chapter struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Compliance struct {
	Description          string    `json:"description"`
	ExportedAt           time.Time `json:"exported_at"`
	PersonalDataIncluded bool      `json:"personal_data_included"`
}

type UserDataExport struct {
	ExportDate  time.Time  `json:"export_date"`
	DataVersion string     `json:"data_version"`
	Compliance  Compliance `json:"gdpr_compliance"`
	User        User       `json:"user"`
	Books       []Book     `json:"books"`
	Chapters    []Chapter  `json:"chapters"`
	Comments    []Comment  `json:"comments"`
	Following   []string   `json:"following"`
	Followers   []string   `json:"followers"`
}

// Source supplies every per-user data section the export contains.
type Source interface {
	User(ctx context.Context, userID string) (User, error)
	Books(ctx context.Context, userID string) ([]Book, error)
	Chapters(ctx context.Context, userID string) ([]Chapter, error)
	Comments(ctx context.Context, userID string) ([]Comment, error)
	Following(ctx context.Context, userID string) ([]string, error)
	Followers(ctx context.Context, userID string) ([]string, error)
}

type Builder struct {
	Source Source

	now func() time.Time
}

func NewBuilder(src Source) *Builder {
	return &Builder{Source: src, now: func() time.Time { return time.Now().UTC() }}
}

// Build gathers every section. Any failing section aborts the export;
// a partial export would silently under-report the user's data.
func (b *Builder) Build(ctx context.Context, userID string) (UserDataExport, error) {
	user, err := b.Source.User(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}
	books, err := b.Source.Books(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}
	chapters, err := b.Source.Chapters(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}
	comments, err := b.Source.Comments(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}
	following, err := b.Source.Following(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}
	followers, err := b.Source.Followers(ctx, userID)
	if err != nil {
		return UserDataExport{}, err
	}

	now := b.now()
	return UserDataExport{
		ExportDate:  now,
		DataVersion: dataVersion,
		Compliance: Compliance{
			Description:          "Complete data export according to GDPR Article 20",
			ExportedAt:           now,
			PersonalDataIncluded: true,
		},
		User:      user,
		Books:     emptyIfNil(books),
		Chapters:  emptyIfNil(chapters),
		Comments:  emptyIfNil(comments),
		Following: emptyIfNil(following),
		Followers: emptyIfNil(followers),
	}, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
