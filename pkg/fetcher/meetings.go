package fetcher

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MeetingRow is one data row of the meetings table: serial number, meeting
// date, year and the minutes download link.
type MeetingRow struct {
	SrNo       string
	Date       string
	Year       string
	URL        string
	SourcePage string
}

// MeetingPageURL adds the year and page filters to the meetings listing
// URL. Page 1 carries no page parameter and year 0 means every year.
func MeetingPageURL(listing string, year, page int) (string, error) {
	u, err := url.Parse(listing)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	} else {
		q.Del("page")
	}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseMeetingTable reads the first table on the page. The header row and
// rows with fewer than four cells or no download link are skipped.
func ParseMeetingTable(doc *goquery.Document, base *url.URL) []MeetingRow {
	var rows []MeetingRow
	source := ""
	if base != nil {
		source = base.String()
	}
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}
		href, ok := cells.Eq(3).Find("a[href]").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		rows = append(rows, MeetingRow{
			SrNo:       cellText(cells.Eq(0)),
			Date:       cellText(cells.Eq(1)),
			Year:       cellText(cells.Eq(2)),
			URL:        ref.String(),
			SourcePage: source,
		})
	})
	return rows
}

// HasNextPage reports whether the page links to page+1, either through a
// "Next" anchor or a numbered ?page= link.
func HasNextPage(doc *goquery.Document, page int) bool {
	next := strconv.Itoa(page + 1)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		// A disabled "Next" on the last page has no real target.
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		if strings.Contains(strings.ToLower(cellText(a)), "next") {
			found = true
			return false
		}
		if u, err := url.Parse(href); err == nil && u.Query().Get("page") == next {
			found = true
			return false
		}
		return true
	})
	return found
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
