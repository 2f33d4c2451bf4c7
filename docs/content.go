package docs

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed content
var content embed.FS

type Page struct {
	Title       string `yaml:"title"`
	Rule        string `yaml:"rule"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Content     string `yaml:"-"`
}

func GetPagesContent() map[string]string {
	docs := map[string]string{}
	for ruleId, page := range GetPages() {
		docs[ruleId] = page.Content
	}
	return docs
}

func GetPages() map[string]*Page {
	pages := map[string]*Page{}
	entries, err := content.ReadDir(path.Join("content", "en", "rules"))
	if err != nil {
		return pages
	}

	for _, entry := range entries {
		ruleId := strings.TrimSuffix(entry.Name(), ".md")
		page, err := GetPage(ruleId)
		if err != nil {
			continue
		}

		pages[ruleId] = page
	}

	return pages
}

// RuleIds returns the documented rule ids, sorted.
func RuleIds() []string {
	pages := GetPages()
	ids := make([]string, 0, len(pages))
	for id := range pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func GetPage(ruleId string) (*Page, error) {
	doc, err := content.ReadFile(
		path.Join("content", "en", "rules", ruleId+".md"))
	if err != nil {
		return nil, err
	}

	parts := strings.SplitAfterN(string(doc), "---\n", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid doc page %s.md", ruleId)
	}

	page := &Page{}
	if err := yaml.Unmarshal([]byte(strings.TrimSuffix(parts[1], "---\n")), page); err != nil {
		return nil, fmt.Errorf("invalid front matter in %s.md: %w", ruleId, err)
	}
	if page.Rule == "" {
		page.Rule = ruleId
	}
	page.Content = strings.TrimSpace(parts[2])

	return page, nil
}
