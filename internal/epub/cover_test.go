package epub

import "testing"

func TestDetectCover(t *testing.T) {
	jpeg := func(id, href string, props ...string) ManifestItem {
		return ManifestItem{ID: id, Href: href, MediaType: "image/jpeg", Properties: props}
	}

	tests := []struct {
		name       string
		items      []ManifestItem
		coverID    string
		guide      []GuideReference
		wantID     string
		wantMethod string
	}{
		{
			name:       "properties",
			items:      []ManifestItem{jpeg("img1", "OEBPS/a.jpg"), jpeg("img2", "OEBPS/b.jpg", "cover-image")},
			wantID:     "img2",
			wantMethod: "properties",
		},
		{
			name:       "meta",
			items:      []ManifestItem{jpeg("img1", "OEBPS/a.jpg"), jpeg("img2", "OEBPS/b.jpg")},
			coverID:    "img1",
			wantID:     "img1",
			wantMethod: "meta",
		},
		{
			name:       "guide with fragment",
			items:      []ManifestItem{jpeg("img1", "OEBPS/a.jpg"), jpeg("img2", "OEBPS/b.jpg")},
			guide:      []GuideReference{{Type: "cover", Href: "OEBPS/b.jpg#x"}},
			wantID:     "img2",
			wantMethod: "guide",
		},
		{
			name: "guide to xhtml falls through to filename",
			items: []ManifestItem{
				{ID: "cp", Href: "OEBPS/cover.xhtml", MediaType: "application/xhtml+xml"},
				jpeg("img", "OEBPS/images/Cover.jpg"),
			},
			guide:      []GuideReference{{Type: "cover", Href: "OEBPS/cover.xhtml"}},
			wantID:     "img",
			wantMethod: "filename",
		},
		{
			name: "svg excluded from filename match",
			items: []ManifestItem{
				{ID: "svg", Href: "OEBPS/cover.svg", MediaType: "image/svg+xml"},
			},
		},
		{
			name:       "properties win over meta",
			items:      []ManifestItem{jpeg("img1", "OEBPS/a.jpg"), jpeg("img2", "OEBPS/b.jpg", "cover-image")},
			coverID:    "img1",
			wantID:     "img2",
			wantMethod: "properties",
		},
		{
			name:    "meta pointing at unknown id",
			items:   []ManifestItem{jpeg("img1", "OEBPS/a.jpg")},
			coverID: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opf := testOPF(tt.items...)
			opf.Metadata.CoverID = tt.coverID
			opf.Guide = tt.guide

			got := opf.DetectCover()
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("DetectCover() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("DetectCover() = nil")
			}
			if got.ManifestID != tt.wantID || got.DetectionMethod != tt.wantMethod {
				t.Errorf("DetectCover() = %s/%s, want %s/%s", got.ManifestID, got.DetectionMethod, tt.wantID, tt.wantMethod)
			}
		})
	}
}
