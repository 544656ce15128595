// Package seed populates newly created workspaces with starter content so a
// first-time user never lands in an empty screen. The template ships embedded
// in the binary and is parsed once at startup.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

//go:embed starter.yaml
var starterTemplate []byte

// Template describes the starter content for a fresh workspace
type Template struct {
	Categories []CategoryTemplate `yaml:"categories"`
	Tasks      []TaskTemplate     `yaml:"tasks"`
}

// CategoryTemplate is one starter category
type CategoryTemplate struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// TaskTemplate is one starter task, assigned to a category by name
type TaskTemplate struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

// Seeder applies the starter template inside the registration transaction
type Seeder struct {
	template *Template
	logger   *observability.Logger
}

// New parses the embedded starter template
func New(logger *observability.Logger) (*Seeder, error) {
	tpl, err := parseTemplate(starterTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse starter template: %w", err)
	}
	return &Seeder{template: tpl, logger: logger}, nil
}

func parseTemplate(raw []byte) (*Template, error) {
	tpl := &Template{}
	if err := yaml.Unmarshal(raw, tpl); err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(tpl.Categories))
	for _, c := range tpl.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		names[c.Name] = true
	}
	for _, task := range tpl.Tasks {
		if task.Title == "" {
			return nil, fmt.Errorf("task with empty title")
		}
		if task.Category != "" && !names[task.Category] {
			return nil, fmt.Errorf("task %q references unknown category %q", task.Title, task.Category)
		}
	}
	return tpl, nil
}

// ApplyStarterContent inserts the template's categories and tasks for a new
// workspace. It runs inside the caller's transaction so a failed registration
// leaves nothing behind.
func (s *Seeder) ApplyStarterContent(ctx context.Context, tx *sql.Tx, workspaceID, userID int64) error {
	categoryIDs := make(map[string]int64, len(s.template.Categories))
	for _, c := range s.template.Categories {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO categories (workspace_id, name, color, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id`,
			workspaceID, c.Name, c.Color,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
		}
		categoryIDs[c.Name] = id
	}

	for _, task := range s.template.Tasks {
		var categoryID sql.NullInt64
		if id, ok := categoryIDs[task.Category]; ok {
			categoryID = sql.NullInt64{Int64: id, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (workspace_id, category_id, title, description, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			workspaceID, categoryID, task.Title, task.Description, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to seed task %q: %w", task.Title, err)
		}
	}
	return nil
}
