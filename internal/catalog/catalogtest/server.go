package catalogtest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
)

// Handler serves the platform gateway API on top of f, for tests that talk
// to the platform over HTTP
func Handler(f *Fake, customerID string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/customers/{customer}/{op}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("customer") != customerID {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown customer")
			return
		}

		var body struct {
			Names       []string `json:"names"`
			CampaignIDs []string `json:"campaign_ids"`
			AssetGroups []string `json:"asset_groups"`
			FieldTypes  []string `json:"field_types"`
			IDs         []string `json:"ids"`
			Text        string   `json:"text"`
			catalog.Mutation
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}

		ctx := r.Context()
		var out any
		var err error
		switch r.PathValue("op") {
		case "campaigns:lookup":
			var cs []catalog.Campaign
			cs, err = f.LookupCampaigns(ctx, body.Names)
			out = map[string]any{"campaigns": cs}
		case "assetGroups:list":
			var gs []catalog.AssetGroup
			gs, err = f.ListAssetGroups(ctx, body.CampaignIDs)
			out = map[string]any{"asset_groups": gs}
		case "assetGroupAssets:list":
			var ls []catalog.Link
			ls, err = f.ListLinks(ctx, body.AssetGroups, body.FieldTypes)
			out = map[string]any{"links": ls}
		case "assets:get":
			var as []catalog.Asset
			as, err = f.AssetDetails(ctx, body.IDs)
			out = map[string]any{"assets": as}
		case "assets:findText":
			var res string
			res, err = f.FindTextAsset(ctx, body.Text)
			out = map[string]any{"resource": res}
		case "mutate":
			// text decodes into the outer field
			m := body.Mutation
			m.Text = body.Text
			var res string
			res, err = f.Mutate(ctx, m)
			var mErr *catalog.MutationError
			if errors.As(err, &mErr) {
				out, err = map[string]any{"error": mErr.Message}, nil
			} else {
				out = map[string]any{"resource": res}
			}
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown operation "+r.PathValue("op"))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})
	return mux
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
}
