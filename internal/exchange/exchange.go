package exchange

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

// Row is the plaintext interchange form of one entry.
type Row struct {
	Group    string `json:"group"`
	Website  string `json:"website"`
	Username string `json:"username"`
	Password string `json:"password"`
}

var csvHeader = []string{"group", "website", "username", "password"}

// Source is the read side of a vault.
type Source interface {
	AllEntries() map[string]map[string]vault.Entry
	GetPassword(website, group string) (string, error)
}

// Sink is the write side of a vault.
type Sink interface {
	ListGroups() []string
	CreateGroup(name string) error
	AddEntry(website, username, password, group string) error
}

// Export decrypts every entry of src, ordered by group then website.
func Export(src Source) ([]Row, error) {
	var rows []Row
	for g, entries := range src.AllEntries() {
		for site, e := range entries {
			pw, err := src.GetPassword(site, g)
			if err != nil {
				return nil, fmt.Errorf("export %s/%s: %w", g, site, err)
			}
			rows = append(rows, Row{Group: g, Website: site, Username: e.Username, Password: pw})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Group != rows[j].Group {
			return rows[i].Group < rows[j].Group
		}
		return rows[i].Website < rows[j].Website
	})
	return rows, nil
}

type Report struct {
	Added         int
	Skipped       int
	GroupsCreated []string
}

// Import adds every row to dst, creating missing groups. Rows whose website
// already exists in the target group are skipped, not overwritten. A row
// without a group goes to the vault's default group.
func Import(dst Sink, rows []Row) (Report, error) {
	var rep Report
	known := map[string]bool{}
	for _, g := range dst.ListGroups() {
		known[g] = true
	}
	for i, r := range rows {
		if r.Group != "" && !known[r.Group] {
			switch err := dst.CreateGroup(r.Group); {
			case err == nil:
				rep.GroupsCreated = append(rep.GroupsCreated, r.Group)
			case !errors.Is(err, vault.ErrGroupExists):
				return rep, fmt.Errorf("row %d: %w", i+1, err)
			}
			known[r.Group] = true
		}
		err := dst.AddEntry(r.Website, r.Username, r.Password, r.Group)
		switch {
		case errors.Is(err, vault.ErrDuplicateEntry):
			rep.Skipped++
		case err != nil:
			return rep, fmt.Errorf("row %d: %w", i+1, err)
		default:
			rep.Added++
		}
	}
	return rep, nil
}

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Group, r.Website, r.Username, r.Password}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV expects a header row naming at least website, username and
// password; columns may come in any order and group is optional.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, need := range []string{"website", "username", "password"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("csv: missing %q column", need)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Group:    field(rec, "group"),
			Website:  field(rec, "website"),
			Username: field(rec, "username"),
			Password: field(rec, "password"),
		})
	}
}

func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func ReadJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return rows, nil
}
