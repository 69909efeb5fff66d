package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
)

const reportQuote = `"The fox knows many things, but the hedgehog knows one big thing."`

type ReportInput struct {
	Name           string
	Synthesis      types.Synthesis
	CareerCanvas   types.CareerCanvas
	NextSteps      []types.NextStep
	OdysseyPaths   types.OdysseyPaths
	OdysseyRatings types.OdysseyRatings
}

type RenderedReport struct {
	Subject string
	HTML    string
	Text    string
}

type reportScore struct {
	Label string
	Value int
}

type reportPath struct {
	Label  string
	Text   string
	Scores []reportScore
}

type reportBlock struct {
	Title string
	Text  string
}

type reportStep struct {
	N        int
	Action   string
	Deadline string
}

type reportView struct {
	Name      string
	Synthesis types.Synthesis
	Paths     []reportPath
	Canvas    []reportBlock
	Steps     []reportStep
	Quote     string
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
  body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;max-width:680px;margin:0 auto;padding:40px 20px;color:#1B2A4A;background:#F0F4F8}
  .card{background:white;border-radius:16px;padding:32px;margin-bottom:24px}
  h1{color:#1B2A4A;font-size:28px;margin:0 0 8px}
  h2{color:#1B2A4A;font-size:18px;border-bottom:2px solid #C9A84C;padding-bottom:8px}
  h3{color:#6B7A99;font-size:11px;text-transform:uppercase;letter-spacing:0.08em;margin:0 0 4px}
  p{line-height:1.7;color:#2D3A5A;margin:0 0 8px}
  .tagline{color:#6B7A99;font-size:16px}
  .block{background:#F0F4F8;border-radius:10px;padding:16px;margin-bottom:12px}
  .score-pill{display:inline-block;background:#1B2A4A;color:white;border-radius:20px;padding:3px 10px;font-size:12px;margin:4px 4px 0 0}
  .quote{border-left:4px solid #C9A84C;padding-left:20px;margin:24px 0;font-style:italic;color:#6B7A99}
  footer{text-align:center;color:#6B7A99;font-size:13px;margin-top:32px}
  .gold{color:#C9A84C;font-weight:600}
</style></head>
<body>
  <div class="card">
    <h1>Your Career Discovery Report</h1>
    <p class="tagline">Hi {{.Name}}, here's everything that emerged from your career discovery interview.</p>
  </div>
{{- with .Synthesis}}
  {{- if .HedgehogOverlap}}
  <div class="card"><h2>The Hedgehog Overlap</h2><p>{{.HedgehogOverlap}}</p></div>
  {{- end}}
  {{- if .ZoneOfGenius}}
  <div class="card"><h2>Your Zone of Genius</h2><p>{{.ZoneOfGenius}}</p></div>
  {{- end}}
  {{- if .IkigaiSweetSpot}}
  <div class="card"><h2>Your Ikigai Sweet Spot</h2><p>{{.IkigaiSweetSpot}}</p></div>
  {{- end}}
  {{- if or .EnergyPatternsPositive .EnergyPatternsDraining}}
  <div class="card"><h2>Energy Patterns</h2>
    {{- if .EnergyPatternsPositive}}<h3 style="color:#2D9E6B">Gives You Energy</h3><p style="white-space:pre-line">{{.EnergyPatternsPositive}}</p>{{end}}
    {{- if .EnergyPatternsDraining}}<h3 style="color:#D94F4F;margin-top:16px">Drains Your Energy</h3><p style="white-space:pre-line">{{.EnergyPatternsDraining}}</p>{{end}}
  </div>
  {{- end}}
  {{- if .KeyInsight}}
  <div class="card" style="border-left:4px solid #C9A84C"><h2>Key Insight</h2><p>{{.KeyInsight}}</p></div>
  {{- end}}
{{- end}}
{{- if .Paths}}
  <div class="card"><h2>Three Odyssey Paths</h2>
  {{- range .Paths}}
    <div class="block"><p class="gold">{{.Label}}</p><p style="font-size:14px;margin:8px 0">{{.Text}}</p>{{range .Scores}}<span class="score-pill">{{.Label}}: {{.Value}}/5</span>{{end}}</div>
  {{- end}}
  </div>
{{- end}}
{{- if .Canvas}}
  <div class="card"><h2>Career Canvas</h2>
  {{- range .Canvas}}
    <div class="block"><h3>{{.Title}}</h3><p style="white-space:pre-line;font-size:14px">{{.Text}}</p></div>
  {{- end}}
  </div>
{{- end}}
{{- if .Steps}}
  <div class="card"><h2>Your Next Steps</h2>
  {{- range .Steps}}
    <div class="block"><p><strong>{{.N}}. {{.Action}}</strong>{{if .Deadline}}<br><span style="font-size:13px;color:#6B7A99">By: {{.Deadline}}</span>{{end}}</p></div>
  {{- end}}
  </div>
{{- end}}
  <div class="quote"><p>{{.Quote}} Archilochus, via Jim Collins</p><p>The goal isn't to find the one perfect answer today. It's to see the patterns clearly enough to take the next right step.</p></div>
  <footer>Career Discovery Interview</footer>
</body></html>`))

// ReportSubject names the email after the user when a name is known.
func ReportSubject(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name + "'s Career Discovery Report"
	}
	return "Your Career Discovery Report"
}

// RenderReport lays out the report. Empty sections are left out entirely.
func RenderReport(cat *catalog.Catalog, in ReportInput) (RenderedReport, error) {
	greeting := strings.TrimSpace(in.Name)
	if greeting == "" {
		greeting = "there"
	}
	view := reportView{Name: greeting, Synthesis: in.Synthesis, Quote: reportQuote}

	for _, p := range cat.Paths() {
		text := strings.TrimSpace(in.OdysseyPaths[p.ID])
		if text == "" {
			continue
		}
		rp := reportPath{Label: p.Label + " — " + p.Title, Text: text}
		scores := in.OdysseyRatings[p.ID]
		for _, d := range cat.Dimensions() {
			if v := scores[d.ID]; v > 0 {
				rp.Scores = append(rp.Scores, reportScore{Label: d.Label, Value: v})
			}
		}
		view.Paths = append(view.Paths, rp)
	}
	for _, k := range cat.CanvasKeys() {
		if v := strings.TrimSpace(in.CareerCanvas[k]); v != "" {
			view.Canvas = append(view.Canvas, reportBlock{Title: strings.ToUpper(strings.ReplaceAll(k, "_", " ")), Text: v})
		}
	}
	for _, s := range in.NextSteps {
		if strings.TrimSpace(s.Action) == "" {
			continue
		}
		view.Steps = append(view.Steps, reportStep{N: len(view.Steps) + 1, Action: strings.TrimSpace(s.Action), Deadline: strings.TrimSpace(s.Deadline)})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return RenderedReport{}, fmt.Errorf("render report: %w", err)
	}
	return RenderedReport{
		Subject: ReportSubject(in.Name),
		HTML:    buf.String(),
		Text:    renderReportText(greeting, in.Synthesis),
	}, nil
}

func renderReportText(greeting string, s types.Synthesis) string {
	parts := []string{"Your Career Discovery Report", "Hi " + greeting + ","}
	for _, p := range []string{s.HedgehogOverlap, s.ZoneOfGenius, s.IkigaiSweetSpot, s.KeyInsight} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, reportQuote+" Archilochus")
	return strings.Join(parts, "\n\n")
}
