package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// A standalone fake indexer for local development. It speaks both dialects:
//
//	/newznab/api?t=search&q=...   usenet-style results with nzb links
//	/torznab/api?t=search&q=...   torrent-style results with seeder attrs
//
// Any apikey is accepted unless it is the literal string "badkey", which
// returns the standard error document for exercising auth failures.
func main() {
	http.HandleFunc("/newznab/", func(w http.ResponseWriter, r *http.Request) { route(w, r, false) })
	http.HandleFunc("/torznab/", func(w http.ResponseWriter, r *http.Request) { route(w, r, true) })

	fmt.Println("Fake indexer starting on :8080")
	fmt.Println("Endpoints: /newznab/api and /torznab/api")
	log.Fatal(http.ListenAndServe(":8080", nil))
}

func route(w http.ResponseWriter, r *http.Request, torrent bool) {
	query := r.URL.Query()

	if query.Get("apikey") == "badkey" {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><error code="100" description="Incorrect user credentials"/>`)
		return
	}

	if query.Get("t") == "caps" || strings.HasSuffix(r.URL.Path, "/caps") {
		capsHandler(w)
		return
	}
	searchHandler(w, r, torrent)
}

func capsHandler(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, `
<caps>
  <server version="1.1" title="Fake Sports Indexer" url="http://localhost:8080"/>
  <limits max="100" default="50"/>
  <searching>
    <search available="yes" supportedParams="q,cat"/>
  </searching>
  <categories>
    <category id="5060" name="TV/Sport"/>
    <category id="2040" name="Movies/HD"/>
  </categories>
</caps>
`)
}

var (
	qualities     = []string{"720p HDTV", "1080p WEB-DL", "2160p WEB", "720p WEB h264", "1080p HDTV"}
	groups        = []string{"VERUM", "WH", "SPORT", "BAY", "NTb"}
	staleEventAge = []int{60, 90, 180} // days, for exercising early-release filtering
)

func searchHandler(w http.ResponseWriter, r *http.Request, torrent bool) {
	log.Printf("Received request URL: %s", r.URL.String())

	event := r.URL.Query().Get("q")
	if event == "" {
		event = "UFC 300 Pereira vs Hill"
	}

	rand.Seed(time.Now().UnixNano())

	var items []string
	// Plausible results for the requested event.
	for i := 0; i < 15; i++ {
		title := fmt.Sprintf("%s %s-%s", event, qualities[rand.Intn(len(qualities))], groups[rand.Intn(len(groups))])
		ageHours := rand.Intn(24 * 7)
		items = append(items, itemXML(title, i, ageHours, torrent))
	}
	// A few ancient postings claiming the same event name.
	for i := 15; i < 18; i++ {
		title := fmt.Sprintf("%s %s-%s", event, qualities[rand.Intn(len(qualities))], groups[rand.Intn(len(groups))])
		ageHours := 24 * staleEventAge[rand.Intn(len(staleEventAge))]
		items = append(items, itemXML(title, i, ageHours, torrent))
	}

	rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	w.Header().Set("Content-Type", "application/xml")
	response := fmt.Sprintf(`<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed"><channel><title>Fake Sports Indexer</title><description>Fake results for %s</description><link>http://localhost:8080</link>%s</channel></rss>`,
		event, strings.Join(items, "\n"))
	fmt.Fprint(w, response)
}

func itemXML(title string, id, ageHours int, torrent bool) string {
	size := rand.Int63n(8000000000) + 1000000000
	pubDate := time.Now().Add(-time.Duration(ageHours) * time.Hour).Format(time.RFC1123Z)

	if !torrent {
		link := fmt.Sprintf("http://localhost:8080/nzb/%d.nzb", id)
		return fmt.Sprintf(`
    <item>
      <title>%s</title>
      <link>%s</link>
      <guid>%s</guid>
      <pubDate>%s</pubDate>
      <category>5060</category>
      <enclosure url="%s" length="%d" type="application/x-nzb"/>
    </item>`, title, link, link, pubDate, link, size)
	}

	seeders := rand.Intn(200) + 1
	leechers := rand.Intn(40)
	magnet := fmt.Sprintf("magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef%08d&dn=%s", id, url.QueryEscape(title))
	escaped := strings.ReplaceAll(magnet, "&", "&amp;")
	return fmt.Sprintf(`
    <item>
      <title>%s</title>
      <link>%s</link>
      <guid>%s</guid>
      <pubDate>%s</pubDate>
      <size>%d</size>
      <torznab:attr name="seeders" value="%d"/>
      <torznab:attr name="peers" value="%d"/>
      <torznab:attr name="magneturl" value="%s"/>
    </item>`, title, escaped, escaped, pubDate, size, seeders, seeders+leechers, escaped)
}
