package publish

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

var postName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-day(\d+)\.md$`)

// ParseFilename extracts the date and day number from a post file name.
func ParseFilename(name string) (date string, day int, ok bool) {
	m := postName.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], day, true
}

// Latest returns the path of the newest post in the category directory, or
// "" when there is none.
func (p *Publisher) Latest() (string, error) {
	dir := filepath.Join(p.OutputRoot, p.Category)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}

	type post struct {
		name string
		date string
		day  int
	}
	var posts []post
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if date, day, ok := ParseFilename(e.Name()); ok {
			posts = append(posts, post{e.Name(), date, day})
		}
	}
	if len(posts) == 0 {
		return "", nil
	}

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].day != posts[j].day {
			return posts[i].day > posts[j].day
		}
		return posts[i].date > posts[j].date
	})
	return filepath.Join(dir, posts[0].name), nil
}

// ErrNoFrontMatter means the post does not start with a YAML header.
var ErrNoFrontMatter = errors.New("post has no front matter")

// Parse splits a post into its front matter and body.
func Parse(data []byte) (FrontMatter, string, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return FrontMatter{}, "", ErrNoFrontMatter
	}
	header, body, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return FrontMatter{}, "", ErrNoFrontMatter
	}

	var fm FrontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return FrontMatter{}, "", fmt.Errorf("parsing front matter: %w", err)
	}
	return fm, string(bytes.TrimSpace(body)), nil
}
