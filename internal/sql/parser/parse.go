package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// parseIdent validates an identifier (table/column name).
// Rules (simple):
//   - must be exactly one token (no spaces)
//   - first char: letter or '_'
//   - rest: letter/digit/'_'
func parseIdent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing identifier")
	}

	parts := strings.Fields(s)
	if len(parts) != 1 {
		return "", fmt.Errorf("invalid identifier %q", s)
	}
	id := parts[0]

	for i, r := range id {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return "", fmt.Errorf("invalid identifier %q", id)
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", fmt.Errorf("invalid identifier %q", id)
		}
	}

	return id, nil
}

// Parse parses a single statement into an AST.
// Policy: statement MUST end with ';'
func Parse(sql string) (Statement, error) {
	s := strings.TrimSpace(sql)
	if s == "" {
		return nil, fmt.Errorf("empty statement")
	}

	// Require ';' at the end (after trimming spaces/newlines)
	if !strings.HasSuffix(s, ";") {
		return nil, fmt.Errorf("missing ';' terminator")
	}

	// Strip the trailing ';' and trim again
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return nil, fmt.Errorf("empty statement")
	}

	up := strings.ToUpper(s)

	switch {
	case hasKeywordPrefix(up, "CREATE EXTERNAL TABLE"):
		return parseCreateExternalTable(s)
	case hasKeywordPrefix(up, "DROP TABLE"):
		return parseDropTable(s)
	case hasKeywordPrefix(up, "SELECT"):
		return parseSelect(s)
	case hasKeywordPrefix(up, "DESCRIBE"):
		return parseDescribe(s, len("DESCRIBE"))
	case hasKeywordPrefix(up, "DESC"):
		return parseDescribe(s, len("DESC"))
	case hasKeywordPrefix(up, "SHOW TABLES"):
		if strings.TrimSpace(s[len("SHOW TABLES"):]) != "" {
			return nil, fmt.Errorf("invalid SHOW TABLES syntax")
		}
		return &ShowTablesStmt{}, nil

	default:
		return nil, fmt.Errorf("unsupported statement: %q", sql)
	}
}

// hasKeywordPrefix reports whether up starts with kw followed by whitespace,
// '(' or the end of input.
func hasKeywordPrefix(up, kw string) bool {
	if !strings.HasPrefix(up, kw) {
		return false
	}
	if len(up) == len(kw) {
		return true
	}
	next := up[len(kw)]
	return next == '(' || unicode.IsSpace(rune(next))
}

func parseCreateExternalTable(sql string) (Statement, error) {
	// "CREATE EXTERNAL TABLE t [(a INT, b TEXT)] STORED AS CSV [options...] LOCATION 'path'"
	rest := strings.TrimSpace(sql[len("CREATE EXTERNAL TABLE"):])

	end := strings.IndexFunc(rest, func(r rune) bool { return r == '(' || unicode.IsSpace(r) })
	if end < 0 {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: missing STORED AS")
	}
	name, err := parseIdent(rest[:end])
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: %w", err)
	}
	rest = strings.TrimSpace(rest[end:])

	stmt := &CreateExternalTableStmt{TableName: name}

	if strings.HasPrefix(rest, "(") {
		closeIdx := strings.Index(rest, ")")
		if closeIdx < 0 {
			return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: unclosed column list")
		}
		cols, err := parseColumnDefs(rest[1:closeIdx])
		if err != nil {
			return nil, err
		}
		stmt.Columns = cols
		rest = rest[closeIdx+1:]
	}

	toks, err := tokenize(rest)
	if err != nil {
		return nil, err
	}
	p := &clauseParser{toks: toks}

	if err := p.expectWords("STORED", "AS"); err != nil {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: %w", err)
	}
	ft, ok := p.word()
	if !ok {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: missing file type")
	}
	stmt.FileType = strings.ToUpper(ft)
	if stmt.FileType != "CSV" {
		return nil, fmt.Errorf("unsupported file type %q", ft)
	}

	for p.more() {
		kw, ok := p.word()
		if !ok {
			return nil, fmt.Errorf("unexpected %q", p.toks[p.pos-1].text)
		}
		switch strings.ToUpper(kw) {
		case "WITH", "WITHOUT":
			if err := p.expectWords("HEADER", "ROW"); err != nil {
				return nil, err
			}
			if stmt.HasHeader != nil {
				return nil, fmt.Errorf("duplicate HEADER ROW clause")
			}
			v := strings.EqualFold(kw, "WITH")
			stmt.HasHeader = &v

		case "DELIMITER":
			if stmt.Delimiter != nil {
				return nil, fmt.Errorf("duplicate DELIMITER clause")
			}
			d, err := p.quoted("DELIMITER")
			if err != nil {
				return nil, err
			}
			stmt.Delimiter = &d

		case "SCHEMA":
			if err := p.expectWords("INFER", "MAX"); err != nil {
				return nil, err
			}
			if stmt.SchemaInferMax != nil {
				return nil, fmt.Errorf("duplicate SCHEMA INFER MAX clause")
			}
			n, err := p.number("SCHEMA INFER MAX")
			if err != nil {
				return nil, err
			}
			stmt.SchemaInferMax = &n

		case "BATCH":
			if err := p.expectWords("SIZE"); err != nil {
				return nil, err
			}
			if stmt.BatchSize != nil {
				return nil, fmt.Errorf("duplicate BATCH SIZE clause")
			}
			n, err := p.number("BATCH SIZE")
			if err != nil {
				return nil, err
			}
			stmt.BatchSize = &n

		case "LOCATION":
			if stmt.Location != "" {
				return nil, fmt.Errorf("duplicate LOCATION clause")
			}
			loc, err := p.quoted("LOCATION")
			if err != nil {
				return nil, err
			}
			if loc == "" {
				return nil, fmt.Errorf("empty LOCATION")
			}
			stmt.Location = loc

		default:
			return nil, fmt.Errorf("unexpected %q in CREATE EXTERNAL TABLE", kw)
		}
	}

	if stmt.Location == "" {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: missing LOCATION")
	}
	return stmt, nil
}

func parseColumnDefs(defPart string) ([]ColumnDef, error) {
	defPart = strings.TrimSpace(defPart)
	if defPart == "" {
		return nil, fmt.Errorf("invalid CREATE EXTERNAL TABLE syntax: empty column list")
	}

	var cols []ColumnDef
	for _, def := range strings.Split(defPart, ",") {
		def = strings.TrimSpace(def)
		toks := strings.Fields(def)
		if len(toks) != 2 {
			return nil, fmt.Errorf("invalid column def: %q", def)
		}

		colName, err := parseIdent(toks[0])
		if err != nil {
			return nil, fmt.Errorf("invalid column name: %w", err)
		}

		cols = append(cols, ColumnDef{
			Name: colName,
			Type: strings.ToUpper(toks[1]),
		})
	}
	return cols, nil
}

func parseDropTable(sql string) (Statement, error) {
	rest := strings.TrimSpace(sql[len("DROP TABLE"):])
	name, err := parseIdent(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid DROP TABLE syntax: %w", err)
	}
	return &DropTableStmt{TableName: name}, nil
}

func parseDescribe(sql string, prefix int) (Statement, error) {
	name, err := parseIdent(sql[prefix:])
	if err != nil {
		return nil, fmt.Errorf("invalid DESCRIBE syntax: %w", err)
	}
	return &DescribeStmt{TableName: name}, nil
}

func parseSelect(sql string) (Statement, error) {
	// "SELECT * | a, b | COUNT(*) FROM t [LIMIT n]"
	rest := strings.TrimSpace(sql[len("SELECT"):])
	projPart, fromPart := splitKeyword(rest, "FROM")
	if strings.TrimSpace(fromPart) == "" {
		return nil, fmt.Errorf("invalid SELECT syntax: missing FROM")
	}

	if f := strings.Fields(fromPart); strings.EqualFold(f[len(f)-1], "LIMIT") {
		return nil, fmt.Errorf("invalid SELECT syntax: LIMIT needs a value")
	}
	tablePart, limitPart := splitKeyword(fromPart, "LIMIT")
	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid SELECT syntax: %w", err)
	}
	stmt := &SelectStmt{TableName: tableName}

	proj := strings.TrimSpace(projPart)
	switch {
	case proj == "*":
	case strings.EqualFold(strings.ReplaceAll(proj, " ", ""), "COUNT(*)"):
		stmt.Count = true
	default:
		for _, c := range splitComma(proj) {
			col, err := parseIdent(c)
			if err != nil {
				return nil, fmt.Errorf("invalid SELECT column: %w", err)
			}
			stmt.Columns = append(stmt.Columns, col)
		}
		if len(stmt.Columns) == 0 {
			return nil, fmt.Errorf("invalid SELECT syntax: empty column list")
		}
	}

	if limitPart != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(limitPart), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid LIMIT %q", limitPart)
		}
		stmt.HasLimit = true
		stmt.Limit = n
	}
	return stmt, nil
}

// splitKeyword splits "X <keyword> Y" case-insensitively.
// returns (X, Y). If keyword not present => (s, "").
//
// NOTE: requires whitespace around keyword.
func splitKeyword(s, keyword string) (string, string) {
	fields := strings.Fields(s)
	for i, f := range fields {
		if strings.EqualFold(f, keyword) {
			return strings.Join(fields[:i], " "), strings.Join(fields[i+1:], " ")
		}
	}
	return s, ""
}

// splitComma splits a comma-separated list, ignoring commas inside quotes (simple version).
func splitComma(s string) []string {
	parts := []string{}
	cur := strings.Builder{}
	inQuote := false
	for _, r := range s {
		switch r {
		case '\'':
			inQuote = !inQuote
			cur.WriteRune(r)
		case ',':
			if inQuote {
				cur.WriteRune(r)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
