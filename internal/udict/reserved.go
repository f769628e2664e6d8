package udict

// Reserved attribute names (spec §6, plus the clock/picture-flow
// supplements recovered from original_source/include/upipe/uref_clock.h
// and uref_pic_flow.h — see SPEC_FULL.md §8).
const (
	NameFlowDef  = "f.def"
	NameLang     = "f.lang"
	NamePTS      = "k.pts"
	NameDTS      = "k.dts"
	NameSystime  = "k.systime"
	NameDuration = "k.duration"
	NameRate     = "k.rate"
	NameStreamID = "a.id"

	NameMacropixel = "p.macropixel"
	NamePlanes     = "p.planes"
	NameHSubFmt    = "p.hsub[%d]"
	NameVSubFmt    = "p.vsub[%d]"
	NameMacropixFmt = "p.macropix[%d]"
	NameChromaFmt   = "p.chroma[%d]"
	NameFPS         = "p.fps"

	// Supplemented from uref_clock.h: program-clock-reference timestamps
	// and the random-access-point flag.
	NameCrDTS = "k.cr_dts"
	NameCrProg = "k.cr_prog"
	NameRAP    = "k.rap"

	// Supplemented from uref_pic_flow.h: declared picture extents and
	// sample aspect ratio, distinct from a single buffer's allocated size.
	NameHSize = "k.hsize"
	NameVSize = "k.vsize"
	NameSAR   = "k.sar"
)

// Flow-definition prefixes (spec §6).
const (
	FlowDefPicture  = "pic."
	FlowDefPicSub   = "pic.sub."
	FlowDefBlock    = "block."
	FlowDefSound    = "sound."
)

// Shorthand accessors for a fixed set of common attributes. Each one
// stores an ordinary named attribute under its reserved name above (for
// example SetPTS is SetUint64(NamePTS, v)); none is keyed by type alone.

func (d *Dict) SetPTS(v uint64)          { d.SetUint64(NamePTS, v) }
func (d *Dict) GetPTS() (uint64, error)  { return d.GetUint64(NamePTS) }
func (d *Dict) SetDTS(v uint64)          { d.SetUint64(NameDTS, v) }
func (d *Dict) GetDTS() (uint64, error)  { return d.GetUint64(NameDTS) }
func (d *Dict) SetSystime(v uint64)      { d.SetUint64(NameSystime, v) }
func (d *Dict) GetSystime() (uint64, error) { return d.GetUint64(NameSystime) }
func (d *Dict) SetDuration(v uint64)     { d.SetUint64(NameDuration, v) }
func (d *Dict) GetDuration() (uint64, error) { return d.GetUint64(NameDuration) }

func (d *Dict) SetFlowDef(v string)         { d.SetString(NameFlowDef, v) }
func (d *Dict) GetFlowDef() (string, error) { return d.GetString(NameFlowDef) }

func (d *Dict) SetStreamID(v uint64)         { d.SetUint64(NameStreamID, v) }
func (d *Dict) GetStreamID() (uint64, error) { return d.GetUint64(NameStreamID) }

func (d *Dict) SetCrDTS(v uint64)         { d.SetUint64(NameCrDTS, v) }
func (d *Dict) GetCrDTS() (uint64, error) { return d.GetUint64(NameCrDTS) }
func (d *Dict) SetCrProg(v uint64)        { d.SetUint64(NameCrProg, v) }
func (d *Dict) GetCrProg() (uint64, error) { return d.GetUint64(NameCrProg) }
func (d *Dict) SetRAP(v bool) {
	var u uint8
	if v {
		u = 1
	}
	d.SetUint8(NameRAP, u)
}
func (d *Dict) GetRAP() (bool, error) {
	u, err := d.GetUint8(NameRAP)
	return u != 0, err
}

// HSize/VSize are the flow-declared picture extents (uref_pic_flow.h),
// distinct from a single buffer's allocated size — see PicMgr.AllocFlow's
// validation against these when a flow dict is given.
func (d *Dict) SetHSize(v uint64)         { d.SetUint64(NameHSize, v) }
func (d *Dict) GetHSize() (uint64, error) { return d.GetUint64(NameHSize) }
func (d *Dict) SetVSize(v uint64)         { d.SetUint64(NameVSize, v) }
func (d *Dict) GetVSize() (uint64, error) { return d.GetUint64(NameVSize) }

func (d *Dict) SetSAR(v Rational)         { d.SetRational(NameSAR, v) }
func (d *Dict) GetSAR() (Rational, error) { return d.GetRational(NameSAR) }
