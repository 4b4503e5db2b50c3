package match

import (
	"os"
	"path/filepath"
	"testing"
)

const testCIF = `
data_test
_cell_length_a 4.0
_cell_length_b 4.0
_cell_length_c 4.0
_cell_angle_alpha 90
_cell_angle_beta 90
_cell_angle_gamma 90
loop_
_atom_site_type_symbol
_atom_site_fract_x
_atom_site_fract_y
_atom_site_fract_z
Na 0.0 0.0 0.0
Cl 0.5 0.5 0.5
`

func writeCIF(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.cif")
	if err := os.WriteFile(path, []byte(testCIF), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCIF(t *testing.T) {
	cell, err := ParseCIF(writeCIF(t))
	if err != nil {
		t.Fatalf("ParseCIF failed: %v", err)
	}
	if cell.A != 4.0 || cell.B != 4.0 || cell.C != 4.0 {
		t.Fatalf("cell lengths = %+v, want a=b=c=4.0", cell)
	}
	if cell.Alpha != 90 || cell.Beta != 90 || cell.Gam != 90 {
		t.Fatalf("cell angles = %+v, want 90/90/90", cell)
	}
	if len(cell.Atoms) != 2 {
		t.Fatalf("len(Atoms) = %d, want 2", len(cell.Atoms))
	}
	if cell.Atoms[0].Element != "Na" || cell.Atoms[1].Element != "Cl" {
		t.Errorf("atoms = %+v", cell.Atoms)
	}
}

func TestParseCIFMissingCellIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cif")
	if err := os.WriteFile(path, []byte("data_bad\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseCIF(path); err == nil {
		t.Error("expected an error for a CIF with no cell parameters")
	}
}

func TestSimulatePeaksProducesNormalizedIntensities(t *testing.T) {
	cell, err := ParseCIF(writeCIF(t))
	if err != nil {
		t.Fatal(err)
	}
	peaks := SimulatePeaks(cell, 4.0, 1.54)
	if len(peaks) == 0 {
		t.Fatal("expected at least one simulated peak")
	}
	var maxI float64
	for _, p := range peaks {
		if p.Intensity > maxI {
			maxI = p.Intensity
		}
		if p.Intensity <= 0 || p.Intensity > 1 {
			t.Errorf("intensity %v out of (0,1]", p.Intensity)
		}
	}
	if maxI != 1 {
		t.Errorf("max intensity = %v, want 1 (normalized)", maxI)
	}
}

func TestSimulatePeaksSortedByQ(t *testing.T) {
	cell, err := ParseCIF(writeCIF(t))
	if err != nil {
		t.Fatal(err)
	}
	peaks := SimulatePeaks(cell, 4.0, 1.54)
	for i := 1; i < len(peaks); i++ {
		if peaks[i].Q < peaks[i-1].Q {
			t.Fatalf("peaks not sorted by q: %v", peaks)
		}
	}
}
