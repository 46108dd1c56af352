package handlers

import (
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"

	"github.com/Brownie44l1/stereodepth/internal/colormap"
	"github.com/Brownie44l1/stereodepth/internal/config"
	"github.com/Brownie44l1/stereodepth/internal/imageio"
	"github.com/Brownie44l1/stereodepth/internal/model"
	"github.com/Brownie44l1/stereodepth/internal/runner"
	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
)

// maxUploadSize bounds the multipart form holding both views.
const maxUploadSize = 64 << 20

// Summary describes a prediction without the field itself.
type Summary struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type Handler struct {
	// mu keeps the predictor single-threaded across requests.
	mu         sync.Mutex
	predictor  model.Predictor
	opts       runner.InferOptions
	vmin, vmax *float64
}

func NewHandler(predictor model.Predictor, cfg config.Config) *Handler {
	return &Handler{
		predictor: predictor,
		opts:      runner.InferOptionsFrom(cfg),
		vmin:      cfg.VMin,
		vmax:      cfg.VMax,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	jsoniter.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Predict takes a multipart upload with "left" and "right" image fields and
// answers with the jet-colored disparity map as PNG, or with a JSON summary
// when called with ?format=json.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	left, err := formImage(r, "left")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	right, err := formImage(r, "right")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	pred, err := runner.Infer(r.Context(), h.predictor, left, right, h.opts)
	h.mu.Unlock()
	if errors.Is(err, imageio.ErrSizeMismatch) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Prediction error: %v", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		lo, hi := colormap.Range(pred.Data, colormap.Options{})
		w.Header().Set("Content-Type", "application/json")
		jsoniter.NewEncoder(w).Encode(Summary{Width: pred.Width, Height: pred.Height, Min: lo, Max: hi})
		return
	}

	img, err := pred.Render(h.vmin, h.vmax)
	if err != nil {
		log.Printf("Render error: %v", err)
		http.Error(w, "Rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		log.Printf("Encode error: %v", err)
	}
}

func formImage(r *http.Request, field string) (image.Image, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("no %s image provided, use %q as the form field name", field, field)
	}
	defer file.Close()

	img, err := imageio.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("invalid %s image %s: %v", field, header.Filename, err)
	}
	log.Printf("Received %s image %s: %dx%d", field, header.Filename, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

// CORS lets browser clients on any origin call next.
func CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Routes registers the endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", CORS(h.Health))
	mux.HandleFunc("/predict", CORS(h.Predict))
	return mux
}
