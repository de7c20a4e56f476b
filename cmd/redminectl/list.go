package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
	"github.com/Sternrassler/redmine-connector/pkg/redmine"
	"github.com/spf13/cobra"
)

// listFlags are shared by every list command.
type listFlags struct {
	offset   int64
	pageSize int
	all      bool
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.offset, "offset", 0, "index of the first record")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "records per request, at most 100 (default from config)")
	cmd.Flags().BoolVar(&f.all, "all", false, "fetch every remaining page")
}

func (f *listFlags) options() redmine.ListOptions {
	return redmine.ListOptions{StartIndex: f.offset, PageSize: f.pageSize}
}

type column[T any] struct {
	header string
	width  int
	value  func(T) string
}

// runList prints one page, or with all set every record from the offset on,
// fetched concurrently.
func runList[T any](ctx context.Context, w io.Writer, c *redmine.Connector, kind model.Kind[T],
	opts redmine.ListOptions, all bool, cols []column[T]) error {

	if all {
		fetcher, err := redmine.Fetcher(c, kind, opts)
		if err != nil {
			return err
		}
		cfg := pagination.DefaultConfig()
		cfg.PageSize = opts.PageSize
		if cfg.PageSize == 0 {
			cfg.PageSize = c.PageSize()
		}
		records, err := pagination.NewBatchFetcher[T](fetcher, cfg).FetchAll(ctx, opts.StartIndex)
		printTable(w, cols, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n(%d %ss)\n", len(records), kind.Name)
		return nil
	}

	p, err := redmine.List(c, kind, opts)
	if err != nil {
		return err
	}
	page, err := p.NextPage(ctx)
	if err != nil {
		return err
	}
	total, err := p.TotalCount()
	if err != nil {
		return err
	}

	if len(page) == 0 {
		fmt.Fprintf(w, "No %ss found (total %d).\n", kind.Name, total)
		return nil
	}

	printTable(w, cols, page)
	fmt.Fprintf(w, "\n(%d-%d of %d", p.StartIndex()+1, p.NextIndex(), total)
	if p.HasMore() {
		fmt.Fprintf(w, ", next: --offset %d", p.NextIndex())
	}
	fmt.Fprintln(w, ")")
	return nil
}

func printTable[T any](w io.Writer, cols []column[T], records []T) {
	if len(records) == 0 {
		return
	}
	var header, rule []string
	for _, col := range cols {
		header = append(header, fmt.Sprintf("%-*s", col.width, col.header))
		rule = append(rule, fmt.Sprintf("%-*s", col.width, strings.Repeat("-", len(col.header))))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(header, "  "), " "))
	fmt.Fprintln(w, strings.TrimRight(strings.Join(rule, "  "), " "))

	for _, rec := range records {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = fmt.Sprintf("%-*s", col.width, truncate(col.value(rec), col.width))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func truncate(s string, width int) string {
	if width <= 3 || len([]rune(s)) <= width {
		return s
	}
	return string([]rune(s)[:width-3]) + "..."
}

func refName(r *model.Ref) string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return strconv.FormatInt(r.ID, 10)
}

func idText(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Work with projects",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), a.connector, model.Projects, lf.options(), lf.all,
				[]column[model.Project]{
					{"ID", 6, func(p model.Project) string { return idText(p.ID) }},
					{"IDENTIFIER", 20, func(p model.Project) string { return p.Identifier }},
					{"NAME", 40, func(p model.Project) string { return p.Name }},
				})
		},
	}
	lf.register(list)

	cmd.AddCommand(list)
	return cmd
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Work with user accounts",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List users (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), a.connector, model.Users, lf.options(), lf.all,
				[]column[model.User]{
					{"ID", 6, func(u model.User) string { return idText(u.ID) }},
					{"LOGIN", 16, func(u model.User) string { return u.Login }},
					{"NAME", 30, func(u model.User) string { return u.FullName() }},
					{"MAIL", 30, func(u model.User) string { return u.Email }},
				})
		},
	}
	lf.register(list)

	cmd.AddCommand(list)
	return cmd
}
