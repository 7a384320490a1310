package passwordfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/cipher"
)

// document is the on-disk layout of the password file
type document struct {
	Passwords []entry `json:"passwords"`
}

// rawDocument is used for reading so a missing passwords field can be detected
type rawDocument struct {
	Passwords *[]entry `json:"passwords"`
}

type entry struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Salt     string      `json:"salt,omitempty"`
	Role     string      `json:"role"`
	Disabled string      `json:"disabled,omitempty"`
	Times    []timeEntry `json:"times,omitempty"`
}

type timeEntry struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// record is an immutable view of one player's credentials.
// Mutations build a new record rather than editing one in place.
type record struct {
	name           string
	role           model.Role
	key            cipher.Key
	disabledReason string
	playTimes      []model.PlayTime
}

func (r *record) player() *model.Player {
	return &model.Player{Name: r.name, Role: r.role}
}

func (r *record) clone() *record {
	c := *r
	c.playTimes = append([]model.PlayTime(nil), r.playTimes...)
	return &c
}

// readDocument parses the password file at path. Entries stored without a
// salt hold a plaintext secret; they are re-derived under a fresh salt and
// reported through upgraded.
func readDocument(path string, rnd io.Reader) (records []*record, upgraded []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Passwords == nil {
		return nil, nil, fmt.Errorf("parse %s: missing passwords field", path)
	}

	for i, e := range *doc.Passwords {
		rec, legacy, err := e.toRecord(rnd)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: entry %d: %w", path, i, err)
		}
		if legacy {
			upgraded = append(upgraded, rec.name)
		}
		records = append(records, rec)
	}
	return records, upgraded, nil
}

func (e entry) toRecord(rnd io.Reader) (*record, bool, error) {
	if e.Username == "" {
		return nil, false, errors.New("missing username")
	}
	role, err := model.ParseRole(e.Role)
	if err != nil {
		return nil, false, err
	}

	var key cipher.Key
	legacy := e.Salt == ""
	if legacy {
		key, err = cipher.NewKey(e.Password, rnd)
	} else {
		key, err = cipher.KeyFromEncoded(e.Password, e.Salt)
	}
	if err != nil {
		return nil, false, fmt.Errorf("player %s: %w", e.Username, err)
	}

	var times []model.PlayTime
	for _, t := range e.Times {
		pt, err := t.toPlayTime()
		if err != nil {
			return nil, false, fmt.Errorf("player %s: %w", e.Username, err)
		}
		times = append(times, pt)
	}

	return &record{
		name:           e.Username,
		role:           role,
		key:            key,
		disabledReason: e.Disabled,
		playTimes:      model.NormalizePlayTimes(times),
	}, legacy, nil
}

func (t timeEntry) toPlayTime() (model.PlayTime, error) {
	return model.ParsePlayTime(t.Day, t.Start, t.End)
}

func entryFromRecord(r *record) entry {
	e := entry{
		Username: r.name,
		Password: r.key.EncodedMaterial(),
		Salt:     r.key.EncodedSalt(),
		Role:     r.role.String(),
		Disabled: r.disabledReason,
	}
	for _, pt := range r.playTimes {
		e.Times = append(e.Times, timeEntry{
			Day:   pt.ISODay(),
			Start: pt.Start.String(),
			End:   pt.End.String(),
		})
	}
	return e
}

// writeDocument replaces the file at path with records. The new content is
// written to a temporary file in the same directory and renamed into place so
// readers never observe a partial document.
func writeDocument(path string, records []*record) error {
	doc := document{Passwords: make([]entry, 0, len(records))}
	for _, r := range records {
		doc.Passwords = append(doc.Passwords, entryFromRecord(r))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	err = os.Rename(tmpName, path)
	return err
}
