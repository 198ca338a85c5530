// Package grobid wraps a GROBID server's full-text extraction endpoint.
package grobid

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/logger"
)

const fulltextPath = "/api/processFulltextDocument"

// Client talks to a GROBID instance and maps its TEI output to ParsedPaper.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewClient creates a GROBID client.
func NewClient(baseURL string, client *http.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

var _ out.PDFParser = (*Client)(nil)

// TEI structures cover only what the enhancer consumes.
type teiDocument struct {
	Header teiHeader `xml:"teiHeader"`
	Text   teiText   `xml:"text"`
}

type teiHeader struct {
	Abstract     teiAbstract  `xml:"profileDesc>abstract"`
	Affiliations []teiOrgName `xml:"fileDesc>sourceDesc>biblStruct>analytic>author>affiliation>orgName"`
}

type teiAbstract struct {
	Paragraphs []string `xml:"div>p"`
}

type teiOrgName struct {
	Type string `xml:"type,attr"`
	Name string `xml:",chardata"`
}

type teiText struct {
	Divisions  []teiDiv       `xml:"body>div"`
	References []teiReference `xml:"back>div>listBibl>biblStruct"`
}

type teiDiv struct {
	Head       string   `xml:"head"`
	Paragraphs []string `xml:"p"`
}

type teiReference struct{}

// Parse uploads the PDF for full-text processing and converts the TEI
// response.
func (c *Client) Parse(ctx context.Context, pdf []byte) (out.ParsedPaper, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", "paper.pdf")
	if err != nil {
		return out.ParsedPaper{}, err
	}
	if _, err := part.Write(pdf); err != nil {
		return out.ParsedPaper{}, err
	}
	if err := writer.Close(); err != nil {
		return out.ParsedPaper{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+fulltextPath, &body)
	if err != nil {
		return out.ParsedPaper{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return out.ParsedPaper{}, fmt.Errorf("grobid request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out.ParsedPaper{}, fmt.Errorf("grobid status %d", resp.StatusCode)
	}

	tei, err := io.ReadAll(resp.Body)
	if err != nil {
		return out.ParsedPaper{}, err
	}
	return parseTEI(tei)
}

func parseTEI(data []byte) (out.ParsedPaper, error) {
	var doc teiDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return out.ParsedPaper{}, fmt.Errorf("parse tei: %w", err)
	}

	paper := out.ParsedPaper{
		Abstract:        joinParagraphs(doc.Header.Abstract.Paragraphs),
		ReferencesCount: len(doc.Text.References),
	}

	for _, div := range doc.Text.Divisions {
		text := joinParagraphs(div.Paragraphs)
		if text == "" {
			continue
		}
		paper.Sections = append(paper.Sections, out.PaperSection{
			Heading: strings.TrimSpace(div.Head),
			Text:    text,
		})
	}

	seen := make(map[string]struct{})
	for _, org := range doc.Header.Affiliations {
		// GROBID tags universities and companies as institution-typed orgs.
		if org.Type != "institution" {
			continue
		}
		name := strings.TrimSpace(org.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		paper.Institutions = append(paper.Institutions, name)
	}

	return paper, nil
}

func joinParagraphs(paragraphs []string) string {
	var parts []string
	for _, p := range paragraphs {
		if trimmed := strings.Join(strings.Fields(p), " "); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}
