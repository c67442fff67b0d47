package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/search"
	"github.com/pders01/tailfeed/internal/storage"
)

const titleWidth = 48

func entryTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "AUTHOR", "LIKES", "COMMENTS", "MEDIA")
}

func entryRow(e storage.Entry) []string {
	title := e.Title
	if title == "" {
		title = e.Caption
	}
	likes := strconv.Itoa(e.LikeCount)
	if e.Liked {
		likes = "♥ " + likes
	}
	media := ""
	if len(e.Media) > 0 {
		media = fmt.Sprintf("%d", len(e.Media))
		if e.HasVideo() {
			media += " ▶"
		}
	}
	return []string{e.ID, shorten(title, titleWidth), e.Author.Name, likes, strconv.Itoa(e.CommentCount), media}
}

func printEntries(w io.Writer, s feed.State) {
	if len(s.Entries) == 0 {
		fmt.Fprintln(w, "No posts")
		return
	}

	t := entryTable()
	for _, e := range s.Entries {
		t.Row(entryRow(e)...)
	}
	fmt.Fprintln(w, t.Render())

	more := "more available"
	if s.Status == feed.StatusExhausted {
		more = "end of feed"
	}
	fmt.Fprintf(w, "%d posts • %s\n", len(s.Entries), more)
}

// printMatches searches the loaded entries of c and prints the hits.
func printMatches(w io.Writer, c *feed.Cache, query string) error {
	idx, err := search.NewIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Sync(c.State().Entries); err != nil {
		return err
	}
	results, err := idx.Search(query, c.Len())
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No loaded posts match %q\n", query)
		return nil
	}

	t := entryTable()
	for _, r := range results {
		if e, ok := c.Entry(r.ID); ok {
			t.Row(entryRow(e)...)
		}
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d of %d loaded posts match %q\n", len(results), c.Len(), query)
	return nil
}

func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
