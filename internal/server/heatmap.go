package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ayusman/dockwatch/internal/heatmap"
	"github.com/ayusman/dockwatch/internal/server/api"
)

// viridis ramp used for dwell intensity
var heatmapColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

type heatmapResponse struct {
	CameraID string              `json:"cameraId"`
	CellSize int                 `json:"cellSize"`
	Max      int                 `json:"max"`
	Cells    []heatmap.CellCount `json:"cells"`
}

// handleHeatmap returns the dwell grid of the active camera.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := heatmapResponse{Cells: []heatmap.CellCount{}}
	if snap := s.config.Monitor.Snapshot(); snap != nil {
		resp.CameraID = snap.SourceID
		resp.CellSize = snap.CellSize
		resp.Max = snap.DwellMax
		if snap.Dwell != nil {
			resp.Cells = snap.Dwell
		}
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// handleHeatmapPage renders the dwell grid as an HTML scatter chart with
// cells placed at their pixel centres and coloured by count.
func (s *Server) handleHeatmapPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.config.Monitor.Snapshot()
	if snap == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "No snapshot available")
		return
	}

	cell := snap.CellSize
	if cell <= 0 {
		cell = heatmap.DefaultCellSize
	}
	half := float64(cell) / 2

	xMax, yMax := 640.0, 480.0
	if snap.Frame != nil {
		xMax, yMax = float64(snap.Frame.Width), float64(snap.Frame.Height)
	}

	// image rows grow downwards, chart y grows upwards
	points := make([]opts.ScatterData, 0, len(snap.Dwell))
	for _, c := range snap.Dwell {
		x := float64(c.X*cell) + half
		y := yMax - (float64(c.Y*cell) + half)
		points = append(points, opts.ScatterData{Value: []interface{}{x, y, c.Count}})
	}

	maxVal := snap.DwellMax
	if maxVal < 1 {
		maxVal = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Dwell Heatmap", Theme: "dark", Width: "960px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Dwell Heatmap", Subtitle: fmt.Sprintf("camera=%s cells=%d cell=%dpx", snap.SourceID, len(points), cell)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: xMax, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: yMax, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: heatmapColors},
		}),
	)
	scatter.AddSeries("dwell", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		api.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render heatmap chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
