package errlog

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
)

// Stats aggregates the append log by category, severity and stage.
// It is a post-run diagnostic, not a correctness input.
type Stats struct {
	Total      int
	ByCategory map[string]int
	BySeverity map[string]int
	ByStage    map[string]int
}

var lineRe = regexp.MustCompile(`^\[([^\]]+)\]\[(ERR-[^\]]+)\]\[([^\]]+)\]\[([^\]]+)\]\[([^\]]+)\] `)

// Stats parses errors.log. Lines that do not match the entry format are
// skipped rather than failing the whole aggregation.
func (l *Logger) Stats() (Stats, error) {
	return ReadStats(l.dir)
}

// ReadStats aggregates an error log directory without holding it open for
// writing, so report commands can run against a finished run's log.
func ReadStats(dir string) (Stats, error) {
	s := Stats{
		ByCategory: map[string]int{},
		BySeverity: map[string]int{},
		ByStage:    map[string]int{},
	}

	f, err := os.Open(filepath.Join(dir, lineLogName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := lineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		s.Total++
		s.BySeverity[m[3]]++
		s.ByCategory[m[4]]++
		s.ByStage[m[5]]++
	}
	return s, sc.Err()
}
