package imgsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCellAt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		i, x, y int
	}{
		{0, 0, 0},
		{1, 152, 0},
		{2, 304, 0},
		{9, 1368, 0},
		{10, 0, 152},
		{23, 456, 304},
	}
	for _, tt := range tests {
		if x, y := CellAt(tt.i); x != tt.x || y != tt.y {
			t.Errorf("CellAt(%d) = (%d, %d), want (%d, %d)", tt.i, x, y, tt.x, tt.y)
		}
	}
}

// threeMonthFiles archives three 300×200 images in 2024/09, ten days apart.
func threeMonthFiles(t *testing.T, root string) {
	t.Helper()
	img := makeJPEG(300, 200)
	writeArchive(t, root, "20240901T080000_100_aaaaaaaaaaaa.jpg", img)
	writeArchive(t, root, "20240911T080000_101_bbbbbbbbbbbb.jpg", img)
	writeArchive(t, root, "20240921T080000_102_cccccccccccc.jpg", img)
}

const threeEntryIndex = `[{"x": 304, "y": 0, "w": 300, "h": 200, "name": "20240901T080000_100_aaaaaaaaaaaa.jpg"},
{"x": 152, "y": 0, "w": 300, "h": 200, "name": "20240911T080000_101_bbbbbbbbbbbb.jpg"},
{"x": 0, "y": 0, "w": 300, "h": 200, "name": "20240921T080000_102_cccccccccccc.jpg"}]`

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestIndexBuilder_NewestNameTakesFirstCell(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	threeMonthFiles(t, root)
	// The sprite of the month must not be indexed.
	sprite := filepath.Join(root, ImagesDirName, "2024", "09", SpriteFileName)
	if err := os.WriteFile(sprite, makeJPEG(1520, 150), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewIndexBuilder(&Config{Root: root})
	report, err := b.Update(context.Background())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !report.DirIndexWritten || len(report.Updated) != 1 || report.Updated[0] != "2024/09" {
		t.Errorf("report = %+v", report)
	}

	monthDir := filepath.Join(root, ImagesDirName, "2024", "09")
	assertSameBytes(t, EntryIndexFileName, []byte(threeEntryIndex), readFile(t, filepath.Join(monthDir, EntryIndexFileName)))
	assertSameBytes(t, DirIndexFileName, []byte("{\n  \"2024/09\": 3\n}"),
		readFile(t, filepath.Join(root, ImagesDirName, DirIndexFileName)))
}

func TestIndexBuilder_Idempotent(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	threeMonthFiles(t, root)
	writeArchive(t, root, "20231231T235959_7_dddddddddddd.jpg", makeJPEG(120, 200))

	b := NewIndexBuilder(&Config{Root: root})
	if _, err := b.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	imagesDir := filepath.Join(root, ImagesDirName)
	dirBefore := readFile(t, filepath.Join(imagesDir, DirIndexFileName))
	entryBefore := readFile(t, filepath.Join(imagesDir, "2024", "09", EntryIndexFileName))

	report, err := b.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.DirIndexWritten || len(report.Updated) != 0 {
		t.Errorf("second run wrote files: %+v", report)
	}
	assertSameBytes(t, DirIndexFileName, dirBefore, readFile(t, filepath.Join(imagesDir, DirIndexFileName)))
	assertSameBytes(t, EntryIndexFileName, entryBefore, readFile(t, filepath.Join(imagesDir, "2024", "09", EntryIndexFileName)))
}

func TestIndexBuilder_PartialUpdateKeepsOtherMonths(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	threeMonthFiles(t, root)
	imagesDir := filepath.Join(root, ImagesDirName)
	if err := os.WriteFile(filepath.Join(imagesDir, DirIndexFileName), []byte(`{"2019/02": 41}`), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewIndexBuilder(&Config{Root: root})
	if _, err := b.Update(context.Background(), "2024/09"); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDirIndex(filepath.Join(imagesDir, DirIndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["2019/02"] != 41 || got["2024/09"] != 3 {
		t.Errorf("dir index = %v, want 2019/02:41 and 2024/09:3", got)
	}
}

func TestIndexBuilder_EmptiedMonthIsDropped(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeArchive(t, root, "20240105T000000_1_000000000000.jpg", makeJPEG(10, 10))
	b := NewIndexBuilder(&Config{Root: root})
	if _, err := b.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Update(context.Background(), "2024/01"); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDirIndex(filepath.Join(root, ImagesDirName, DirIndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["2024/01"]; ok {
		t.Errorf("emptied month still indexed: %v", got)
	}
}

func TestIndexBuilder_ReusesStoredSizes(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	threeMonthFiles(t, root)
	monthDir := filepath.Join(root, ImagesDirName, "2024", "09")
	// Stale cell and fake size for one known file.
	seed := `[{"x": 999, "y": 999, "w": 1, "h": 2, "name": "20240911T080000_101_bbbbbbbbbbbb.jpg"}]`
	if err := os.WriteFile(filepath.Join(monthDir, EntryIndexFileName), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewIndexBuilder(&Config{Root: root}).Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, _, err := LoadEntryIndex(filepath.Join(monthDir, EntryIndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	reused := entries[1]
	if reused.W != 1 || reused.H != 2 {
		t.Errorf("stored size not reused: %+v", reused)
	}
	if reused.X != 152 || reused.Y != 0 {
		t.Errorf("cell not recomputed: %+v", reused)
	}

	// Refresh mode decodes again.
	if _, err := NewIndexBuilder(&Config{Root: root, RefreshEntries: true}).Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertSameBytes(t, EntryIndexFileName, []byte(threeEntryIndex), readFile(t, filepath.Join(monthDir, EntryIndexFileName)))
}

func TestIndexBuilder_UnreadableImage(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeArchive(t, root, "20240105T000000_1_000000000000.jpg", makeJPEG(40, 30))
	writeArchive(t, root, "20240106T000000_2_000000000000.jpg", []byte("garbage"))

	if _, err := NewIndexBuilder(&Config{Root: root}).Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	imagesDir := filepath.Join(root, ImagesDirName)
	entries, _, err := LoadEntryIndex(filepath.Join(imagesDir, "2024", "01", EntryIndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].W != 40 || entries[0].H != 30 {
		t.Errorf("entries = %+v, want only the readable image", entries)
	}
	// The unreadable file keeps the newest cell.
	if entries[0].X != 152 {
		t.Errorf("readable image x = %d, want 152", entries[0].X)
	}
	dirIndex, err := LoadDirIndex(filepath.Join(imagesDir, DirIndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	if dirIndex["2024/01"] != 2 {
		t.Errorf("count = %d, want 2 physical files", dirIndex["2024/01"])
	}
}

func TestIndexBuilder_InvalidMonthKey(t *testing.T) {
	t.Parallel()
	b := NewIndexBuilder(&Config{Root: t.TempDir()})
	for _, key := range []string{"2024-09", "24/09", "2024/9", "../../etc"} {
		if _, err := b.Update(context.Background(), key); err == nil {
			t.Errorf("Update(%q) expected error", key)
		}
	}
}

func TestIndexBuilder_RebuildDirIndex(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	threeMonthFiles(t, root)
	imagesDir := filepath.Join(root, ImagesDirName)
	if err := os.WriteFile(filepath.Join(imagesDir, DirIndexFileName), []byte(`{"2019/02": 41, "2024/09": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := NewIndexBuilder(&Config{Root: root}).RebuildDirIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Error("RebuildDirIndex reported no write")
	}
	assertSameBytes(t, DirIndexFileName, []byte("{\n  \"2024/09\": 3\n}"), readFile(t, filepath.Join(imagesDir, DirIndexFileName)))
}

func TestDirIndex_MergeCommutes(t *testing.T) {
	t.Parallel()
	a := DirIndex{"2024/01": 4, "2024/02": 7}
	b := DirIndex{"2023/12": 1, "2024/03": 0}

	ab := DirIndex{"2024/03": 9, "2020/01": 2}
	ab.Merge(a)
	ab.Merge(b)

	ba := DirIndex{"2024/03": 9, "2020/01": 2}
	ba.Merge(b)
	ba.Merge(a)

	abData, _ := MarshalDirIndex(ab)
	baData, _ := MarshalDirIndex(ba)
	assertSameBytes(t, "merge order", abData, baData)

	want := "{\n  \"2020/01\": 2,\n  \"2023/12\": 1,\n  \"2024/01\": 4,\n  \"2024/02\": 7\n}"
	assertSameBytes(t, DirIndexFileName, []byte(want), abData)
}
