package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/state"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <state|remove-duplicates> <state-file|posts-directory>")
	}

	command := os.Args[1]
	target := os.Args[2]

	switch command {
	case "state":
		if err := migrateState(target); err != nil {
			log.Fatal(err)
		}
	case "remove-duplicates":
		if err := removeDuplicates(target, os.Stdin, os.Stdout); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// Keys used by state files written before the story state moved to English.
var legacyStoryKeys = map[string]string{
	"시놉시스":     "synopsis",
	"스토리 바이블":  "story_bible",
	"최근 생성 단락": "last_passage",
	"누적 플롯 로그": "plot_log",
}

// migrateState rewrites a state file in the current format. The original is
// kept next to it with a .bak suffix.
func migrateState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading state %s: %w", path, err)
	}

	out, kind, changed, err := normalizeState(data)
	if err != nil {
		return fmt.Errorf("migrating %s: %w", path, err)
	}
	if !changed {
		log.Printf("%s is already current (%s state)", path, kind)
		return nil
	}

	if err := os.WriteFile(path+".bak", data, 0644); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}

	var v any
	if kind == "story" {
		var st journey.StoryState
		if err := json.Unmarshal(out, &st); err != nil {
			return err
		}
		v = st
	} else {
		var st journey.State
		if err := json.Unmarshal(out, &st); err != nil {
			return err
		}
		v = st
	}
	if err := state.NewStore[any](path, nil).Save(v); err != nil {
		return err
	}

	log.Printf("Migrated %s (%s state), backup in %s.bak", path, kind, path)
	return nil
}

// normalizeState converts a legacy history or story state document. It
// reports which kind it found and whether anything changed.
func normalizeState(data []byte) ([]byte, string, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", false, fmt.Errorf("parsing state: %w", err)
	}

	kind := "history"
	changed := false
	for legacy, key := range legacyStoryKeys {
		if v, ok := raw[legacy]; ok {
			kind = "story"
			changed = true
			if _, exists := raw[key]; !exists {
				raw[key] = v
			}
			delete(raw, legacy)
		}
	}
	if _, ok := raw["synopsis"]; ok {
		kind = "story"
	}

	if kind == "history" {
		if topic, ok := raw["current_topic"]; ok {
			if _, exists := raw["last_topic"]; !exists {
				raw["last_topic"] = topic
			}
			delete(raw, "current_topic")
			changed = true
		}
		for _, key := range []string{"current_year", "next_year"} {
			if v, ok := raw[key]; ok {
				if n, ok := normalizeYear(v); ok {
					raw[key] = n
					changed = true
				}
			}
		}
	}

	if _, ok := raw["last_run_date"]; !ok {
		raw["last_run_date"] = json.RawMessage(`""`)
		changed = true
	}

	out, err := state.Marshal(raw)
	if err != nil {
		return nil, "", false, err
	}
	return out, kind, changed, nil
}

// normalizeYear turns "1958" into 1958. Placeholders and numbers are left
// alone and reported as unchanged.
func normalizeYear(v json.RawMessage) (json.RawMessage, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return v, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return v, false
	}
	return json.RawMessage(strconv.Itoa(n)), true
}

// findDuplicates groups posts of the same directory that share a day number.
// Each group is sorted newest first.
func findDuplicates(postsDir string) ([][]string, error) {
	byDay := make(map[string][]string)
	err := filepath.WalkDir(postsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Continue on errors
		}
		if d.IsDir() {
			return nil
		}
		_, day, ok := publish.ParseFilename(d.Name())
		if !ok {
			return nil
		}
		key := filepath.Join(filepath.Dir(path), "day"+strconv.Itoa(day))
		byDay[key] = append(byDay[key], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	var groups [][]string
	for _, files := range byDay {
		if len(files) <= 1 {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
		groups = append(groups, files)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}

// removeDuplicates keeps the newest post of each day and asks before deleting
// the others.
func removeDuplicates(postsDir string, in io.Reader, out io.Writer) error {
	groups, err := findDuplicates(postsDir)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	totalRemoved := 0
	for _, files := range groups {
		fmt.Fprintf(out, "\nFound %d posts for the same day in %s:\n", len(files), filepath.Dir(files[0]))
		for i, file := range files {
			fileName := filepath.Base(file)
			if i == 0 {
				fmt.Fprintf(out, "  KEEP: %s\n", fileName)
				continue
			}

			if confirmDelete(reader, out, file) {
				if err := os.Remove(file); err != nil {
					log.Printf("Error removing %s: %v", file, err)
				} else {
					totalRemoved++
					fmt.Fprintf(out, "  REMOVED: %s\n", fileName)
				}
			} else {
				fmt.Fprintf(out, "  SKIP: %s\n", fileName)
			}
		}
	}

	fmt.Fprintf(out, "\nRemoved %d duplicate files\n", totalRemoved)
	return nil
}

func confirmDelete(reader *bufio.Reader, out io.Writer, path string) bool {
	for {
		fmt.Fprintf(out, "  DELETE %s? [y/N]: ", filepath.Base(path))
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if err != io.EOF {
				log.Printf("Error reading input: %v", err)
			}
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "  Please enter y or n.")
			if err != nil {
				return false
			}
		}
	}
}
