package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/nexepic/metrix-studio/pkg/commands"
	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/history"
)

const shellHelp = `Commands:
  :open PATH      create or open a database
  :connect PATH   open an existing database
  :close          close the open database
  :status         show the connection state
  :history [N]    show recent queries
  :recent         show recent databases
  :help           show this help
  :quit           leave the shell
Any other line is run as a query.`

// runShell reads one command or query per line from in until EOF or :quit.
// Errors are printed and the loop continues.
func runShell(ctx context.Context, svc *commands.Service, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	prompt := func() {
		if path := svc.Status().Path; path != "" {
			fmt.Fprintf(out, "metrix(%s)> ", path)
			return
		}
		fmt.Fprint(out, "metrix> ")
	}

	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			prompt()
			continue
		}
		if quit := shellLine(ctx, svc, line, out); quit {
			return nil
		}
		prompt()
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func shellLine(ctx context.Context, svc *commands.Service, line string, out io.Writer) bool {
	if !strings.HasPrefix(line, ":") {
		res, err := svc.RunQuery(ctx, line)
		if err != nil {
			printError(out, err)
			return false
		}
		printResult(out, res)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":quit", ":exit", ":q":
		return true
	case ":help", ":h":
		fmt.Fprintln(out, shellHelp)
	case ":open", ":connect":
		if arg == "" {
			fmt.Fprintf(out, "usage: %s PATH\n", cmd)
			return false
		}
		op := svc.OpenDatabase
		if cmd == ":connect" {
			op = svc.ConnectExisting
		}
		msg, err := op(ctx, arg)
		if err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintln(out, msg)
	case ":close":
		if err := svc.CloseDatabase(ctx); err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintln(out, "Database closed")
	case ":status":
		st := svc.Status()
		if st.Path == "" {
			fmt.Fprintln(out, st.State)
		} else {
			fmt.Fprintf(out, "%s %s\n", st.State, st.Path)
		}
	case ":history":
		limit := 10
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				fmt.Fprintln(out, "usage: :history [N]")
				return false
			}
			limit = n
		}
		entries, err := svc.History(limit)
		if err != nil {
			printError(out, err)
			return false
		}
		printHistory(out, entries)
	case ":recent":
		recent, err := svc.RecentConnections()
		if err != nil {
			printError(out, err)
			return false
		}
		printRecent(out, recent)
	default:
		fmt.Fprintf(out, "unknown command %s (try :help)\n", cmd)
	}
	return false
}

func printError(out io.Writer, err error) {
	fmt.Fprintf(out, "error [%s]: %s\n", driver.KindName(err), err)
}

// printResult renders rows as an aligned table. Node and edge cells show as
// their JSON references.
func printResult(out io.Writer, res *driver.QueryResult) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellText(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(out, "(%d rows, %d nodes, %d edges, %d ms)\n",
		len(res.Rows), len(res.Nodes), len(res.Edges), res.DurationMillis())
}

func cellText(v driver.Value) string {
	if s, ok := v.(driver.String); ok {
		return string(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(driver.Interface(v))
	}
	return string(data)
}

func printHistory(out io.Writer, entries []history.Entry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%d rows\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Status, e.DurationMS, e.RowCount, firstLine(e.Query))
	}
	tw.Flush()
}

func printRecent(out io.Writer, recent []history.Connection) {
	for _, c := range recent {
		fmt.Fprintf(out, "%s  %-7s  %s\n", c.LastUsed.Local().Format("2006-01-02 15:04"), c.Mode, c.Path)
	}
}

func firstLine(s string) string {
	line, _, found := strings.Cut(s, "\n")
	if found {
		return line + " ..."
	}
	return line
}
