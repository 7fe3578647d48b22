package sqlite

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/bradfitz/iter"

	"github.com/anacrolix/sqlmsg/wire"
)

type statement struct {
	att  *attachment
	text string
	typ  wire.StatementType
	in   *wire.MessageMetadata
	out  *wire.MessageMetadata
	// Arguments used when SQLite must look at the statement without real parameters.
	placeholders []any
	plans        map[bool]string
	freed        bool
}

var _ wire.Statement = (*statement)(nil)

func classify(toks []token) (wire.StatementType, error) {
	first := toks[0]
	second := func(s string) bool {
		return len(toks) > 1 && toks[1].is(s)
	}
	switch {
	case first.is("select"), first.is("with"), first.is("values"):
		for i := range toks[:len(toks)-1] {
			if toks[i].is("for") && toks[i+1].is("update") {
				return wire.StatementSelectForUpdate, nil
			}
		}
		return wire.StatementSelect, nil
	case first.is("insert"), first.is("update"), first.is("delete"), first.is("replace"):
		if indexTop(toks, 0, "returning") >= 0 {
			return wire.StatementExecProcedure, nil
		}
		switch {
		case first.is("update"):
			return wire.StatementUpdate, nil
		case first.is("delete"):
			return wire.StatementDelete, nil
		}
		return wire.StatementInsert, nil
	case first.is("create"), first.is("drop"), first.is("alter"), first.is("recreate"):
		return wire.StatementDDL, nil
	case first.is("set") && second("transaction"):
		return wire.StatementStartTransaction, nil
	case first.is("set") && second("generator"):
		return wire.StatementSetGenerator, nil
	case first.is("commit"):
		return wire.StatementCommit, nil
	case first.is("rollback"):
		if indexTop(toks, 1, "to") >= 0 {
			return wire.StatementSavepoint, nil
		}
		return wire.StatementRollback, nil
	case first.is("savepoint"), first.is("release"):
		return wire.StatementSavepoint, nil
	case first.is("execute"):
		return 0, wire.Errorf(wire.CodeDsqlError, "Dynamic SQL Error: feature is not supported: %s", join(toks[:min(2, len(toks))]))
	}
	return 0, syntaxError("Token unknown - %s", first.text)
}

func returnsRows(typ wire.StatementType) bool {
	switch typ {
	case wire.StatementSelect, wire.StatementSelectForUpdate, wire.StatementExecProcedure:
		return true
	}
	return false
}

func prepare(att *attachment, sqlTx *sql.Tx, text string, flags wire.PrepareFlags) (ret *statement, err error) {
	toks, err := lex(text)
	if err != nil {
		return
	}
	if len(toks) == 0 {
		err = syntaxError("Unexpected end of command")
		return
	}
	typ, err := classify(toks)
	if err != nil {
		return
	}
	me := &statement{
		att:  att,
		text: rewrite(toks),
		typ:  typ,
	}
	switch typ {
	case wire.StatementStartTransaction, wire.StatementCommit, wire.StatementRollback, wire.StatementSetGenerator:
		ret = me
		return
	}
	a := analysis{
		toks: toks,
		tx:   sqlTx,
		cs:   att.params.charset,
	}
	a.findTables()
	inFields, limits, err := a.inputFields()
	if err != nil {
		return
	}
	if len(inFields) != 0 {
		me.in = wire.NewMessageMetadata(inFields)
	}
	me.placeholders = make([]any, len(inFields))
	for _, i := range limits {
		me.placeholders[i] = int64(0)
	}
	if returnsRows(typ) {
		var outFields []wire.Field
		if outFields, err = a.outputFields(me.text, me.placeholders); err != nil {
			return
		}
		if len(outFields) != 0 {
			me.out = wire.NewMessageMetadata(outFields)
		}
	}
	if flags&(wire.PrepareFlagPrefetchLegacyPlan|wire.PrepareFlagPrefetchDetailedPlan) != 0 && typ != wire.StatementDDL {
		me.plans = make(map[bool]string, 2)
		for _, detailed := range []bool{false, true} {
			if me.plans[detailed], err = me.explain(sqlTx, detailed); err != nil {
				return
			}
		}
	}
	ret = me
	return
}

func (me *statement) Type() wire.StatementType {
	return me.typ
}

func (me *statement) InputMetadata() wire.Metadata {
	if me.in == nil {
		return nil
	}
	return me.in
}

func (me *statement) OutputMetadata() wire.Metadata {
	if me.out == nil {
		return nil
	}
	return me.out
}

func (me *statement) checkLive() error {
	if me.freed {
		return wire.Errorf(wire.CodeDsqlError, "Dynamic SQL Error: attempt to reclose a closed cursor or use a freed statement")
	}
	return nil
}

func (me *statement) Plan(detailed bool) (string, error) {
	if err := me.checkLive(); err != nil {
		return "", err
	}
	if plan, ok := me.plans[detailed]; ok {
		return plan, nil
	}
	if me.typ == wire.StatementDDL || me.typ == wire.StatementSavepoint {
		return "", wire.Errorf(wire.CodeDsqlError, "Dynamic SQL Error: %v statements have no plan", me.typ)
	}
	return me.explain(me.att.db, detailed)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func (me *statement) explain(q queryer, detailed bool) (ret string, err error) {
	rows, err := q.Query("explain query plan "+me.text, me.placeholders...)
	if err != nil {
		err = sqliteError(err)
		return
	}
	defer rows.Close()
	depth := map[int64]int{0: 0}
	var lines []string
	for rows.Next() {
		var (
			id, parent, notUsed int64
			detail              string
		)
		if err = rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			err = sqliteError(err)
			return
		}
		depth[id] = depth[parent] + 1
		if detailed {
			lines = append(lines, strings.Repeat("    ", depth[id])+"-> "+detail)
		} else {
			lines = append(lines, detail)
		}
	}
	if err = rows.Err(); err != nil {
		err = sqliteError(err)
		return
	}
	if detailed {
		ret = "Select Expression"
		for _, l := range lines {
			ret += "\n" + l
		}
	} else {
		ret = "PLAN (" + strings.Join(lines, ", ") + ")"
	}
	return
}

// Execute runs the statement once. Row returning statements write their first row into out.
func (me *statement) Execute(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata, out []byte) (err error) {
	if err = me.checkLive(); err != nil {
		return
	}
	t, sqlTx, err := me.att.transaction(tx)
	if err != nil {
		return
	}
	switch me.typ {
	case wire.StatementStartTransaction, wire.StatementCommit, wire.StatementRollback:
		return wire.Errorf(wire.CodeDsqlError, "Dynamic SQL Error: %v must be executed through the transaction interface", me.typ)
	case wire.StatementSetGenerator:
		return wire.Errorf(wire.CodeDsqlError, "Dynamic SQL Error: feature is not supported: generators")
	case wire.StatementSelect, wire.StatementSelectForUpdate:
	default:
		if t.opts.readOnly && me.typ != wire.StatementSavepoint {
			return readOnlyError()
		}
	}
	args, err := decodeArgs(inMeta, in, me.att.params.charset)
	if err != nil {
		return
	}
	if returnsRows(me.typ) {
		var rows [][]any
		if rows, err = query(sqlTx, me.text, args); err != nil {
			return
		}
		if outMeta != nil {
			if len(rows) == 0 {
				nullRow(outMeta, out)
			} else if err = encodeRow(outMeta, rows[0], out, me.att.params.charset); err != nil {
				return
			}
		}
	} else if _, err = sqlTx.Exec(me.text, args...); err != nil {
		return sqliteError(err)
	}
	if t.opts.autoCommit && me.typ != wire.StatementSelect && me.typ != wire.StatementSelectForUpdate {
		err = t.CommitRetaining()
	}
	return
}

// query reads every row of the result.
func query(q queryer, text string, args []any) (ret [][]any, err error) {
	rows, err := q.Query(text, args...)
	if err != nil {
		err = sqliteError(err)
		return
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		err = sqliteError(err)
		return
	}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range iter.N(len(cols)) {
			ptrs[i] = &row[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			err = sqliteError(err)
			return
		}
		ret = append(ret, row)
	}
	err = sqliteError(rows.Err())
	return
}

// OpenCursor runs the query and buffers its result for scrolling.
func (me *statement) OpenCursor(tx wire.Transaction, inMeta wire.Metadata, in []byte, outMeta wire.Metadata) (wire.Cursor, error) {
	if err := me.checkLive(); err != nil {
		return nil, err
	}
	if !returnsRows(me.typ) {
		return nil, wire.Errorf(wire.CodeNoCursor, "Dynamic SQL Error: %v statement does not return rows", me.typ)
	}
	t, sqlTx, err := me.att.transaction(tx)
	if err != nil {
		return nil, err
	}
	if me.typ == wire.StatementExecProcedure && t.opts.readOnly {
		return nil, readOnlyError()
	}
	args, err := decodeArgs(inMeta, in, me.att.params.charset)
	if err != nil {
		return nil, err
	}
	rows, err := query(sqlTx, me.text, args)
	if err != nil {
		return nil, err
	}
	return &cursor{
		meta: outMeta,
		rows: rows,
		cs:   me.att.params.charset,
	}, nil
}

func (me *statement) Free() error {
	me.freed = true
	return nil
}

// analysis infers the message layouts SQLite doesn't report from the statement text.
type analysis struct {
	toks   []token
	tx     *sql.Tx
	cs     charset
	tables []string
}

func identName(t token) string {
	if t.kind == tokQuoted {
		return unquote(t.text)
	}
	return strings.ReplaceAll(t.text, "$", "_")
}

func isName(t token) bool {
	return t.kind == tokIdent || t.kind == tokQuoted
}

// findTables collects the relations named after FROM, JOIN, INTO and UPDATE.
func (me *analysis) findTables() {
	for i, t := range me.toks[:len(me.toks)-1] {
		if !(t.is("from") || t.is("join") || t.is("into") || i == 0 && t.is("update")) {
			continue
		}
		if next := me.toks[i+1]; isName(next) {
			me.tables = append(me.tables, identName(next))
		}
	}
}

// columnDecl returns the declared type of a column in one of the statement's relations.
func (me *analysis) columnDecl(column string) (relation, decl string, ok bool) {
	for _, table := range me.tables {
		err := me.tx.QueryRow(
			"select type from pragma_table_info(?) where name = ? collate nocase",
			table, column,
		).Scan(&decl)
		if err == nil {
			return table, decl, true
		}
	}
	return
}

func (me *analysis) columnField(column string) (f wire.Field, ok bool) {
	relation, decl, ok := me.columnDecl(column)
	if !ok {
		return
	}
	f, _ = fieldOf(decl, me.cs)
	f.Relation = relation
	f.Field = column
	return
}

func isComparison(t token) bool {
	if t.kind != tokPunct && t.kind != tokIdent {
		return false
	}
	switch strings.ToLower(t.text) {
	case "=", "==", "<>", "!=", "<", ">", "<=", ">=", "like":
		return true
	}
	return false
}

// insertColumns maps token positions of parameters in an INSERT ... VALUES list to the target
// column names.
func (me *analysis) insertColumns() map[int]string {
	toks := me.toks
	into := indexTop(toks, 0, "into")
	if into < 0 || into+2 >= len(toks) || !toks[into+2].is("(") {
		return nil
	}
	end := closing(toks, into+2)
	values := indexTop(toks, into, "values")
	if end < 0 || values < 0 || values+1 >= len(toks) || !toks[values+1].is("(") {
		return nil
	}
	var names []string
	for _, col := range splitTop(toks[into+3 : end]) {
		if len(col) == 1 && isName(col[0]) {
			names = append(names, identName(col[0]))
		} else {
			names = append(names, "")
		}
	}
	ret := make(map[int]string)
	valuesEnd := closing(toks, values+1)
	if valuesEnd < 0 {
		return nil
	}
	pos := values + 2
	for i, item := range splitTop(toks[values+2 : valuesEnd]) {
		if len(item) == 1 && item[0].kind == tokParam && i < len(names) {
			ret[pos] = names[i]
		}
		pos += len(item) + 1
	}
	return ret
}

// inputFields describes one parameter per '?'. limits lists the parameters of LIMIT and OFFSET
// clauses.
func (me *analysis) inputFields() (fields []wire.Field, limits []int, err error) {
	toks := me.toks
	casts := make(map[int][]token)
	for i := range toks {
		if expr, typ, _, ok := castAt(toks, i); ok && len(expr) == 1 && expr[0].kind == tokParam {
			casts[i+2] = typ
		}
	}
	inserts := me.insertColumns()
	for i, t := range toks {
		if t.kind != tokParam {
			continue
		}
		if t.text != "?" {
			err = syntaxError("numbered parameters are not supported: %s", t.text)
			return
		}
		f, ok := me.paramField(i, casts, inserts)
		if !ok {
			if i > 0 && (toks[i-1].is("limit") || toks[i-1].is("offset")) {
				f, _ = fieldOf("BIGINT", me.cs)
				limits = append(limits, len(fields))
			} else {
				f = textField(me.cs)
			}
		}
		f.Nullable = true
		fields = append(fields, f)
	}
	return
}

func (me *analysis) paramField(i int, casts map[int][]token, inserts map[int]string) (f wire.Field, ok bool) {
	toks := me.toks
	if typ, found := casts[i]; found {
		return fieldOf(join(typ), me.cs)
	}
	if name, found := inserts[i]; found {
		if f, ok = me.columnField(name); ok {
			return
		}
	}
	if i >= 2 && isComparison(toks[i-1]) && isName(toks[i-2]) {
		if f, ok = me.columnField(identName(toks[i-2])); ok {
			return
		}
	}
	if i+2 < len(toks) && isComparison(toks[i+1]) && isName(toks[i+2]) {
		name := identName(toks[i+2])
		if i+4 < len(toks) && toks[i+3].is(".") && isName(toks[i+4]) {
			name = identName(toks[i+4])
		}
		if f, ok = me.columnField(name); ok {
			return
		}
	}
	return
}

// selectItems returns the expressions of the outermost select list, or of the RETURNING
// clause.
func (me *analysis) selectItems() [][]token {
	toks := me.toks
	if ret := indexTop(toks, 0, "returning"); ret >= 0 {
		return splitTop(toks[ret+1:])
	}
	start := indexTop(toks, 0, "select")
	if start < 0 {
		return nil
	}
	start++
	for start < len(toks) && (toks[start].is("distinct") || toks[start].is("all")) {
		start++
	}
	end := len(toks)
	for _, word := range []string{"from", "union", "order", "for"} {
		if i := indexTop(toks, start, word); i >= 0 && i < end {
			end = i
		}
	}
	if start >= end {
		return nil
	}
	return splitTop(toks[start:end])
}

// stripAlias removes a trailing "AS name" or bare alias.
func stripAlias(item []token) []token {
	n := len(item)
	if n >= 3 && item[n-2].is("as") && isName(item[n-1]) {
		return item[:n-2]
	}
	if n >= 2 && isName(item[n-1]) {
		prev := item[n-2]
		if isName(prev) || prev.kind == tokNumber || prev.kind == tokString || prev.is(")") {
			return item[:n-1]
		}
	}
	return item
}

// literalField guesses the type of a constant select item.
func (me *analysis) literalField(item []token) (f wire.Field, ok bool) {
	if len(item) >= 2 && item[0].is("-") && item[1].kind == tokNumber {
		item = item[1:]
	}
	if len(item) >= 2 && item[0].is("count") && item[1].is("(") {
		return fieldOf("BIGINT", me.cs)
	}
	if len(item) != 1 {
		return
	}
	t := item[0]
	switch {
	case t.kind == tokString:
		n := len([]rune(unquote(t.text)))
		return fieldOf("CHAR("+strconv.Itoa(max(n, 1))+")", me.cs)
	case t.kind == tokNumber && strings.ContainsAny(t.text, "eE"):
		return fieldOf("DOUBLE PRECISION", me.cs)
	case t.kind == tokNumber && strings.Contains(t.text, "."):
		scale := len(t.text) - strings.IndexByte(t.text, '.') - 1
		return fieldOf("NUMERIC(18,"+strconv.Itoa(scale)+")", me.cs)
	case t.kind == tokNumber:
		if _, err := strconv.ParseInt(t.text, 10, 32); err == nil {
			return fieldOf("INTEGER", me.cs)
		}
		return fieldOf("BIGINT", me.cs)
	case t.is("true"), t.is("false"):
		return fieldOf("BOOLEAN", me.cs)
	case t.is("null"):
		return fieldOf("NULL", me.cs)
	case t.is("current_date"):
		return fieldOf("DATE", me.cs)
	case t.is("current_time"), t.is("localtime"):
		return fieldOf("TIME", me.cs)
	case t.is("current_timestamp"), t.is("localtimestamp"):
		return fieldOf("TIMESTAMP", me.cs)
	}
	return
}

// outputFields asks SQLite for the result columns and their declared types, then refines them
// from casts and literals in the select list.
func (me *analysis) outputFields(text string, placeholders []any) (fields []wire.Field, err error) {
	rows, err := me.tx.Query(text, placeholders...)
	if err != nil {
		err = sqliteError(err)
		return
	}
	types, err := rows.ColumnTypes()
	rows.Close()
	if err != nil {
		err = sqliteError(err)
		return
	}
	items := me.selectItems()
	if len(items) != len(types) {
		items = nil
	}
	for i, ct := range types {
		var (
			f    wire.Field
			ok   bool
			expr []token
		)
		if items != nil {
			expr = stripAlias(items[i])
		}
		if _, typ, end, isCast := castAt(expr, 0); isCast && end == len(expr)-1 {
			f, ok = fieldOf(join(typ), me.cs)
		}
		if !ok && ct.DatabaseTypeName() != "" {
			f, ok = fieldOf(ct.DatabaseTypeName(), me.cs)
		}
		if !ok && len(expr) != 0 {
			f, ok = me.literalField(expr)
		}
		if !ok && len(expr) == 1 && isName(expr[0]) {
			f, ok = me.columnField(identName(expr[0]))
		}
		if !ok {
			f = textField(me.cs)
		}
		f.Alias = ct.Name()
		if f.Field == "" {
			if n := len(expr); n != 0 && isName(expr[n-1]) && (n == 1 || expr[n-2].is(".")) {
				f.Field = identName(expr[n-1])
				if f.Relation == "" && len(me.tables) == 1 {
					f.Relation = me.tables[0]
				}
			} else {
				f.Field = f.Alias
			}
		}
		f.Nullable = true
		fields = append(fields, f)
	}
	return
}
