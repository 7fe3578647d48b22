// Command sqlmsg-cli runs statements against a database served by sqlmsgd, printing rows the
// way the sqlite3 command-line utility does. All statements run in one transaction, committed
// after the last.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/anacrolix/envpprof"
	"github.com/docopt/docopt-go"

	"github.com/anacrolix/sqlmsg"
	"github.com/anacrolix/sqlmsg/wire"
)

const doc = `Usage: sqlmsg-cli [options] <database> <query>...

Options:
  --addr=<addr>        sqlmsgd address  [default: localhost:6033]
  --charset=<charset>  connection character set  [default: UTF8]
  --create             create the database first
  --header             print column names before the rows of each query
  --plan               print the plan of each query before running it
`

type printer struct {
	att    *sqlmsg.Attachment
	tx     *sqlmsg.Transaction
	header bool
	plan   bool
}

func (me *printer) value(s *sqlmsg.Statement, i int) (v string, err error) {
	if s.OutputDescriptors()[i].AdjustedType != sqlmsg.AdjustedBlob {
		v, _, err = s.GetString(i)
		return
	}
	id, ok, err := s.GetBlobId(i)
	if !ok || err != nil {
		return
	}
	data, err := me.att.ReadBlob(me.tx, id)
	v = string(data)
	return
}

func (me *printer) row(s *sqlmsg.Statement) (err error) {
	descs := s.OutputDescriptors()
	fields := make([]string, len(descs))
	for i := range descs {
		if fields[i], err = me.value(s, i); err != nil {
			return
		}
	}
	fmt.Println(strings.Join(fields, "|"))
	return
}

func (me *printer) run(query string) (err error) {
	s, err := sqlmsg.NewStatement(me.att, me.tx, query, sqlmsg.StatementOptions{PrefetchPlan: me.plan})
	if err != nil {
		return
	}
	defer s.Close()
	descs := s.OutputDescriptors()
	if me.plan && len(descs) != 0 {
		var plan string
		if plan, err = s.Plan(); err != nil {
			return
		}
		fmt.Println(plan)
	}
	if me.header && len(descs) != 0 {
		names := make([]string, len(descs))
		for i, d := range descs {
			names[i] = d.Alias
			if names[i] == "" {
				names[i] = d.Field
			}
		}
		fmt.Println(strings.Join(names, "|"))
	}
	ok, err := s.Execute(me.tx)
	for ok && err == nil && len(descs) != 0 {
		if err = me.row(s); err != nil {
			return
		}
		switch s.Type() {
		case wire.StatementSelect, wire.StatementSelectForUpdate:
			ok, err = s.FetchNext()
		default:
			// Other statements return at most one row.
			ok = false
		}
	}
	return
}

func main() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	opts, err := docopt.Parse(doc, nil, true, "", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing options: %s", err)
		os.Exit(2)
	}
	engine, err := sqlmsg.DialRemoteEngine(opts["--addr"].(string))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error connecting: %s\n", err)
		os.Exit(1)
	}
	client := sqlmsg.NewClient(engine)
	defer client.Close()
	att, err := sqlmsg.NewAttachment(client, opts["<database>"].(string), sqlmsg.AttachmentOptions{
		ConnectionCharSet: opts["--charset"].(string),
		CreateDatabase:    opts["--create"].(bool),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %s\n", err)
		os.Exit(1)
	}
	defer att.Close()
	tx, err := sqlmsg.NewTransaction(att, sqlmsg.TransactionOptions{})
	if err != nil {
		log.Fatal(err)
	}
	defer tx.Close()
	p := printer{
		att:    att,
		tx:     tx,
		header: opts["--header"].(bool),
		plan:   opts["--plan"].(bool),
	}
	for _, arg := range opts["<query>"].([]string) {
		if err := p.run(arg); err != nil {
			fmt.Fprintf(os.Stderr, "error executing sql: %s\n", err)
			os.Exit(1)
		}
	}
	if err := tx.Commit(); err != nil {
		fmt.Fprintf(os.Stderr, "error committing: %s\n", err)
		os.Exit(1)
	}
}
