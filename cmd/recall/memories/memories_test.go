package memoriescmder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/apiclient"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/memory"
)

var _ = Describe("memories", func() {
	var (
		server *httptest.Server
		query  string
		body   string
		out    *bytes.Buffer
		cmder  *memoriesCommander
	)

	BeforeEach(func() {
		body = `{"count":2,"memories":[{"id":"1","memory":"Deadline is Friday"},{"id":"2","memory":"Prefers email"}]}`
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/memories", func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			_, _ = io.WriteString(w, body)
		})
		server = httptest.NewServer(mux)

		out = &bytes.Buffer{}
		cmder = &memoriesCommander{
			configDir: GinkgoT().TempDir(),
			client:    apiclient.New(server.URL, nil),
			out:       out,
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists memories for the given user", func() {
		cmder.userID = "alice"
		cmder.groupID = "team"
		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(query).To(ContainSubstring("user_id=alice"))
		Expect(out.String()).To(ContainSubstring("Deadline is Friday"))
		Expect(out.String()).To(ContainSubstring("Prefers email"))
	})

	It("falls back to the ask session scope", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.SessionState{UserID: "bob", GroupID: "cli"}, cmder.configDir)).To(Succeed())
		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(query).To(ContainSubstring("user_id=bob"))
		Expect(query).To(ContainSubstring("group_id=cli"))
	})

	It("needs a user", func() {
		Expect(cmder.run(context.Background())).To(MatchError(ContainSubstring("--user")))
	})

	It("says when nothing is stored", func() {
		body = `{"count":0,"memories":[]}`
		cmder.userID = "alice"
		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring(memory.NoRelevantMemory))
	})
})
