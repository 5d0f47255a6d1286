package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"tarabot/internal/core/domain"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	logPrefix  = "command-log_"
	logSuffix  = ".csv"
	monthStamp = "2006-01"
	fieldCount = 8
)

// CommandLog stores command events as headerless CSV, one file per month the
// events were written in.
type CommandLog struct {
	dir string
	now func() time.Time
}

func NewCommandLog(dir string) *CommandLog {
	return &CommandLog{dir: dir, now: time.Now}
}

// Path returns the file events written at t are appended to.
func (c *CommandLog) Path(t time.Time) string {
	return filepath.Join(c.dir, logPrefix+t.UTC().Format(monthStamp)+logSuffix)
}

// Append writes events to the current month's file, creating it if needed.
func (c *CommandLog) Append(events []domain.LoggedCommandEvent) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		err = fmt.Errorf("error creating log directory %w", err)
		log.Error().Err(err).Str("dir", c.dir).Send()
		return err
	}

	path := c.Path(c.now())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		err = fmt.Errorf("error opening command log %w", err)
		log.Error().Err(err).Str("path", path).Send()
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, event := range events {
		if err := w.Write(encodeEvent(event)); err != nil {
			return fmt.Errorf("error writing command log %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		err = fmt.Errorf("error flushing command log %w", err)
		log.Error().Err(err).Str("path", path).Send()
		return err
	}

	log.Debug().Int("events", len(events)).Str("path", path).Msg("appended command log")

	return nil
}

// Read returns every logged event with lower < time < upper, oldest file first.
func (c *CommandLog) Read(lower, upper time.Time) ([]domain.LoggedCommandEvent, error) {
	paths, err := c.files(lower)
	if err != nil {
		return nil, err
	}

	events := []domain.LoggedCommandEvent{}
	for _, path := range paths {
		events, err = readFile(path, events, lower, upper)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("could not read command log")
			return nil, err
		}
	}

	return events, nil
}

// files lists the log files that can hold events after lower. A file only holds
// events from before the end of its month.
func (c *CommandLog) files(lower time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, logPrefix+"*"+logSuffix))
	if err != nil {
		return nil, fmt.Errorf("error listing command logs %w", err)
	}

	var paths []string
	for _, path := range matches {
		name := filepath.Base(path)
		stamp := name[len(logPrefix) : len(name)-len(logSuffix)]
		month, err := time.Parse(monthStamp, stamp)
		if err != nil {
			log.Warn().Str("path", path).Msg("skipping file with unexpected name")
			continue
		}
		if !month.AddDate(0, 1, 0).After(lower) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths, nil
}

func readFile(path string, events []domain.LoggedCommandEvent, lower, upper time.Time) ([]domain.LoggedCommandEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening command log %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fieldCount
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing command log %w", err)
		}

		event, err := decodeEvent(record)
		if err != nil {
			return nil, err
		}
		if event.Time.After(lower) && event.Time.Before(upper) {
			events = append(events, event)
		}
	}
}

func encodeEvent(e domain.LoggedCommandEvent) []string {
	return []string{
		e.Name,
		e.Time.UTC().Format(time.RFC3339Nano),
		e.ChannelID,
		e.UserName,
		e.UserID,
		strconv.FormatBool(e.CalledFromGuild),
		e.GuildName,
		e.GuildID,
	}
}

func decodeEvent(record []string) (domain.LoggedCommandEvent, error) {
	at, err := time.Parse(time.RFC3339Nano, record[1])
	if err != nil {
		return domain.LoggedCommandEvent{}, fmt.Errorf("error parsing event time %w", err)
	}

	fromGuild, err := strconv.ParseBool(record[5])
	if err != nil {
		return domain.LoggedCommandEvent{}, fmt.Errorf("error parsing guild flag %w", err)
	}

	return domain.LoggedCommandEvent{
		Name:            record[0],
		Time:            at,
		ChannelID:       record[2],
		UserName:        record[3],
		UserID:          record[4],
		CalledFromGuild: fromGuild,
		GuildName:       record[6],
		GuildID:         record[7],
	}, nil
}
