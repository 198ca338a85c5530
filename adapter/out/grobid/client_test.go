package grobid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benchscope/benchscope/pkg/logger"
)

const teiSample = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <fileDesc>
      <sourceDesc>
        <biblStruct>
          <analytic>
            <author>
              <affiliation>
                <orgName type="institution">Stanford University</orgName>
                <orgName type="department">Computer Science</orgName>
              </affiliation>
            </author>
            <author>
              <affiliation>
                <orgName type="institution">Stanford University</orgName>
              </affiliation>
            </author>
          </analytic>
        </biblStruct>
      </sourceDesc>
    </fileDesc>
    <profileDesc>
      <abstract>
        <div><p>We present a   benchmark for agents.</p><p>It has 800 tasks.</p></div>
      </abstract>
    </profileDesc>
  </teiHeader>
  <text>
    <body>
      <div><head>Introduction</head><p>Agents are hard to evaluate.</p></div>
      <div><head>Evaluation</head><p>We measure pass rate.</p><p>Across three suites.</p></div>
      <div><head>Empty Section</head></div>
    </body>
    <back>
      <div>
        <listBibl>
          <biblStruct/><biblStruct/><biblStruct/>
        </listBibl>
      </div>
    </back>
  </text>
</TEI>`

func TestParseTEI(t *testing.T) {
	paper, err := parseTEI([]byte(teiSample))
	if err != nil {
		t.Fatalf("parseTEI: %v", err)
	}

	if paper.Abstract != "We present a benchmark for agents. It has 800 tasks." {
		t.Errorf("Abstract = %q", paper.Abstract)
	}
	if len(paper.Sections) != 2 {
		t.Fatalf("Sections = %d, want 2 (empty division dropped)", len(paper.Sections))
	}
	if paper.Sections[1].Heading != "Evaluation" {
		t.Errorf("Heading = %q", paper.Sections[1].Heading)
	}
	if paper.Sections[1].Text != "We measure pass rate. Across three suites." {
		t.Errorf("Text = %q", paper.Sections[1].Text)
	}
	if len(paper.Institutions) != 1 || paper.Institutions[0] != "Stanford University" {
		t.Errorf("Institutions = %v (departments skipped, duplicates collapsed)", paper.Institutions)
	}
	if paper.ReferencesCount != 3 {
		t.Errorf("ReferencesCount = %d", paper.ReferencesCount)
	}
}

func TestParseTEIInvalid(t *testing.T) {
	if _, err := parseTEI([]byte("not xml at all <<<")); err == nil {
		t.Error("expected error for invalid TEI")
	}
}

func TestClientParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/processFulltextDocument" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("input"); err != nil {
			t.Errorf("input file missing: %v", err)
		}
		w.Write([]byte(teiSample))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client(),
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))

	paper, err := c.Parse(context.Background(), []byte("%PDF-1.5 fake"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if paper.ReferencesCount != 3 {
		t.Errorf("ReferencesCount = %d", paper.ReferencesCount)
	}
}

func TestClientParseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(),
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))
	if _, err := c.Parse(context.Background(), []byte("pdf")); err == nil {
		t.Error("expected error on 500")
	}
}
