package udict

import (
	"fmt"
	"testing"
)

func TestSetGetRoundTripAllTypes(t *testing.T) {
	d := newDict()

	d.SetUint8("u8", 7)
	d.SetUint64("u64", 1<<40)
	d.SetInt64("i64", -42)
	d.SetRational("r", Rational{Num: 30000, Den: 1001})
	d.SetString("s", "hello")
	d.SetOpaque("o", []byte{1, 2, 3})

	if v, err := d.GetUint8("u8"); err != nil || v != 7 {
		t.Fatalf("GetUint8=%d,%v", v, err)
	}
	if v, err := d.GetUint64("u64"); err != nil || v != 1<<40 {
		t.Fatalf("GetUint64=%d,%v", v, err)
	}
	if v, err := d.GetInt64("i64"); err != nil || v != -42 {
		t.Fatalf("GetInt64=%d,%v", v, err)
	}
	if v, err := d.GetRational("r"); err != nil || v != (Rational{30000, 1001}) {
		t.Fatalf("GetRational=%v,%v", v, err)
	}
	if v, err := d.GetString("s"); err != nil || v != "hello" {
		t.Fatalf("GetString=%q,%v", v, err)
	}
	if v, err := d.GetOpaque("o"); err != nil || string(v) != "\x01\x02\x03" {
		t.Fatalf("GetOpaque=%v,%v", v, err)
	}
}

func TestWrongTypeDoesNotMutate(t *testing.T) {
	// spec §8 scenario 6: set_unsigned(d,"k.pts",42); get_string(d,"k.pts")
	// returns failure (WrongType) and does not mutate d.
	d := newDict()
	d.SetUint64(NamePTS, 42)

	if _, err := d.GetString(NamePTS); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	// The original attribute must be untouched.
	v, err := d.GetUint64(NamePTS)
	if err != nil || v != 42 {
		t.Fatalf("dict mutated by failed typed get: v=%d err=%v", v, err)
	}
}

func TestNotFound(t *testing.T) {
	d := newDict()
	if _, err := d.GetUint64("missing"); err != ErrNotFound {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestDeleteAndLen(t *testing.T) {
	d := newDict()
	d.SetUint8("a", 1)
	d.SetUint8("b", 2)
	if d.Len() != 2 {
		t.Fatalf("Len=%d, want 2", d.Len())
	}
	d.Delete(TypeUint8, "a")
	if d.Len() != 1 {
		t.Fatalf("Len=%d, want 1", d.Len())
	}
	if _, err := d.GetUint8("a"); err != ErrNotFound {
		t.Fatalf("expected deleted attribute to be gone, err=%v", err)
	}
	if v, err := d.GetUint8("b"); err != nil || v != 2 {
		t.Fatalf("remaining attribute corrupted: v=%d err=%v", v, err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := newDict()
	d.SetString(NameFlowDef, "pic.")
	clone := d.Clone()
	clone.SetString(NameFlowDef, "block.mpeg2video.")

	orig, _ := d.GetFlowDef()
	cloned, _ := clone.GetFlowDef()
	if orig != "pic." {
		t.Fatalf("original mutated: %q", orig)
	}
	if cloned != "block.mpeg2video." {
		t.Fatalf("clone wrong: %q", cloned)
	}
}

func TestImportMerges(t *testing.T) {
	dst := newDict()
	dst.SetUint8("a", 1)
	src := newDict()
	src.SetUint8("a", 9)
	src.SetUint8("b", 2)

	dst.Import(src)

	if v, _ := dst.GetUint8("a"); v != 9 {
		t.Fatalf("import should overwrite, got %d", v)
	}
	if v, _ := dst.GetUint8("b"); v != 2 {
		t.Fatalf("import should add new attrs, got %d", v)
	}
}

func TestPlaneLayoutRoundTrip(t *testing.T) {
	// spec §8 round-trip law: alloc_control; set flow_def="pic.";
	// add_plane(y,1,1,1); add_plane(u,2,2,1); add_plane(v,2,2,1) yields a
	// dict from which planes==3 and chroma strings round-trip.
	d := newDict()
	d.SetFlowDef(FlowDefPicture)
	planes := []string{"y", "u", "v"}
	for i, chroma := range planes {
		d.SetString(fmt.Sprintf(NameChromaFmt, i), chroma)
	}
	d.SetUint8(NamePlanes, uint8(len(planes)))

	n, err := d.GetUint8(NamePlanes)
	if err != nil || n != 3 {
		t.Fatalf("planes=%d,%v want 3,nil", n, err)
	}
	for i, want := range planes {
		got, err := d.GetString(fmt.Sprintf(NameChromaFmt, i))
		if err != nil || got != want {
			t.Fatalf("chroma[%d]=%q,%v want %q", i, got, err, want)
		}
	}
}
