package nfs

import "fmt"

// NFSv3 wire structures (RFC 1813 section 2.5 plus the per-procedure
// argument and result bodies). Every type carries both Encode and
// Decode so the server, the client and the tests share one codec.
// Results are discriminated unions on their status: Encode and Decode
// pick the success or failure arm accordingly.

// FileTime is an nfstime3.
type FileTime struct {
	Seconds uint32
	Nano    uint32
}

func (t *FileTime) Encode(e *Encoder) {
	e.Uint32(t.Seconds)
	e.Uint32(t.Nano)
}

func (t *FileTime) Decode(d *Decoder) error {
	var err error
	if t.Seconds, err = d.Uint32(); err != nil {
		return err
	}
	t.Nano, err = d.Uint32()
	return err
}

// Fattr3 is the full attribute set of a file.
type Fattr3 struct {
	Type      uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Size      uint64
	Used      uint64
	RdevMajor uint32
	RdevMinor uint32
	FSID      uint64
	FileID    uint64
	Atime     FileTime
	Mtime     FileTime
	Ctime     FileTime
}

func (a *Fattr3) Encode(e *Encoder) {
	e.Uint32(a.Type)
	e.Uint32(a.Mode)
	e.Uint32(a.Nlink)
	e.Uint32(a.UID)
	e.Uint32(a.GID)
	e.Uint64(a.Size)
	e.Uint64(a.Used)
	e.Uint32(a.RdevMajor)
	e.Uint32(a.RdevMinor)
	e.Uint64(a.FSID)
	e.Uint64(a.FileID)
	a.Atime.Encode(e)
	a.Mtime.Encode(e)
	a.Ctime.Encode(e)
}

func (a *Fattr3) Decode(d *Decoder) error {
	fields32 := []*uint32{&a.Type, &a.Mode, &a.Nlink, &a.UID, &a.GID}
	for _, f := range fields32 {
		var err error
		if *f, err = d.Uint32(); err != nil {
			return err
		}
	}
	var err error
	if a.Size, err = d.Uint64(); err != nil {
		return err
	}
	if a.Used, err = d.Uint64(); err != nil {
		return err
	}
	if a.RdevMajor, err = d.Uint32(); err != nil {
		return err
	}
	if a.RdevMinor, err = d.Uint32(); err != nil {
		return err
	}
	if a.FSID, err = d.Uint64(); err != nil {
		return err
	}
	if a.FileID, err = d.Uint64(); err != nil {
		return err
	}
	if err = a.Atime.Decode(d); err != nil {
		return err
	}
	if err = a.Mtime.Decode(d); err != nil {
		return err
	}
	return a.Ctime.Decode(d)
}

// PostOpAttr is a post_op_attr: attributes when the server had them.
type PostOpAttr struct {
	Present bool
	Attr    Fattr3
}

func (a *PostOpAttr) Encode(e *Encoder) {
	e.Bool(a.Present)
	if a.Present {
		a.Attr.Encode(e)
	}
}

func (a *PostOpAttr) Decode(d *Decoder) error {
	var err error
	if a.Present, err = d.Bool(); err != nil {
		return err
	}
	if !a.Present {
		return nil
	}
	return a.Attr.Decode(d)
}

// WccAttr is the abbreviated pre-operation attribute set.
type WccAttr struct {
	Size  uint64
	Mtime FileTime
	Ctime FileTime
}

func (a *WccAttr) Encode(e *Encoder) {
	e.Uint64(a.Size)
	a.Mtime.Encode(e)
	a.Ctime.Encode(e)
}

func (a *WccAttr) Decode(d *Decoder) error {
	var err error
	if a.Size, err = d.Uint64(); err != nil {
		return err
	}
	if err = a.Mtime.Decode(d); err != nil {
		return err
	}
	return a.Ctime.Decode(d)
}

// PreOpAttr is a pre_op_attr.
type PreOpAttr struct {
	Present bool
	Attr    WccAttr
}

func (a *PreOpAttr) Encode(e *Encoder) {
	e.Bool(a.Present)
	if a.Present {
		a.Attr.Encode(e)
	}
}

func (a *PreOpAttr) Decode(d *Decoder) error {
	var err error
	if a.Present, err = d.Bool(); err != nil {
		return err
	}
	if !a.Present {
		return nil
	}
	return a.Attr.Decode(d)
}

// WccData carries weak cache consistency data for update procedures.
type WccData struct {
	Before PreOpAttr
	After  PostOpAttr
}

func (w *WccData) Encode(e *Encoder) {
	w.Before.Encode(e)
	w.After.Encode(e)
}

func (w *WccData) Decode(d *Decoder) error {
	if err := w.Before.Decode(d); err != nil {
		return err
	}
	return w.After.Decode(d)
}

// PostOpFH3 is a post_op_fh3: a handle when the server returns one.
type PostOpFH3 struct {
	Present bool
	Handle  []byte
}

func (f *PostOpFH3) Encode(e *Encoder) {
	e.Bool(f.Present)
	if f.Present {
		e.Opaque(f.Handle)
	}
}

func (f *PostOpFH3) Decode(d *Decoder) error {
	var err error
	if f.Present, err = d.Bool(); err != nil {
		return err
	}
	if !f.Present {
		return nil
	}
	f.Handle, err = d.Opaque(HandleMaxSize)
	return err
}

// Sattr3 set_atime/set_mtime discriminants.
const (
	TimeDontChange      = 0
	TimeSetToServerTime = 1
	TimeSetToClientTime = 2
)

// Sattr3 is the attribute update set carried by mutation procedures.
// This server only ever decodes it on the way to an ROFS rejection.
type Sattr3 struct {
	SetMode  bool
	Mode     uint32
	SetUID   bool
	UID      uint32
	SetGID   bool
	GID      uint32
	SetSize  bool
	Size     uint64
	SetAtime uint32
	Atime    FileTime
	SetMtime uint32
	Mtime    FileTime
}

func (s *Sattr3) Decode(d *Decoder) error {
	var err error
	if s.SetMode, err = d.Bool(); err != nil {
		return err
	}
	if s.SetMode {
		if s.Mode, err = d.Uint32(); err != nil {
			return err
		}
	}
	if s.SetUID, err = d.Bool(); err != nil {
		return err
	}
	if s.SetUID {
		if s.UID, err = d.Uint32(); err != nil {
			return err
		}
	}
	if s.SetGID, err = d.Bool(); err != nil {
		return err
	}
	if s.SetGID {
		if s.GID, err = d.Uint32(); err != nil {
			return err
		}
	}
	if s.SetSize, err = d.Bool(); err != nil {
		return err
	}
	if s.SetSize {
		if s.Size, err = d.Uint64(); err != nil {
			return err
		}
	}
	if s.SetAtime, err = d.Uint32(); err != nil {
		return err
	}
	if s.SetAtime == TimeSetToClientTime {
		if err = s.Atime.Decode(d); err != nil {
			return err
		}
	}
	if s.SetMtime, err = d.Uint32(); err != nil {
		return err
	}
	if s.SetMtime == TimeSetToClientTime {
		if err = s.Mtime.Decode(d); err != nil {
			return err
		}
	}
	return nil
}

// DirOpArgs3 names an entry within a directory. It is the argument body
// of LOOKUP, REMOVE and RMDIR.
type DirOpArgs3 struct {
	Dir  []byte
	Name string
}

func (a *DirOpArgs3) Encode(e *Encoder) {
	e.Opaque(a.Dir)
	e.String(a.Name)
}

func (a *DirOpArgs3) Decode(d *Decoder) error {
	var err error
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	a.Name, err = d.String(NameMaxSize)
	return err
}

// GetAttr3Args is the GETATTR argument body.
type GetAttr3Args struct {
	Handle []byte
}

func (a *GetAttr3Args) Encode(e *Encoder) {
	e.Opaque(a.Handle)
}

func (a *GetAttr3Args) Decode(d *Decoder) error {
	var err error
	a.Handle, err = d.Opaque(HandleMaxSize)
	return err
}

// GetAttr3Res is the GETATTR result body.
type GetAttr3Res struct {
	Status Status
	Attr   Fattr3
}

func (r *GetAttr3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	if r.Status == StatusOK {
		r.Attr.Encode(e)
	}
}

func (r *GetAttr3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if r.Status != StatusOK {
		return nil
	}
	return r.Attr.Decode(d)
}

// Lookup3Res is the LOOKUP result body.
type Lookup3Res struct {
	Status  Status
	Handle  []byte
	ObjAttr PostOpAttr
	DirAttr PostOpAttr
}

func (r *Lookup3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	if r.Status == StatusOK {
		e.Opaque(r.Handle)
		r.ObjAttr.Encode(e)
	}
	r.DirAttr.Encode(e)
}

func (r *Lookup3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if r.Status == StatusOK {
		if r.Handle, err = d.Opaque(HandleMaxSize); err != nil {
			return err
		}
		if err = r.ObjAttr.Decode(d); err != nil {
			return err
		}
	}
	return r.DirAttr.Decode(d)
}

// Access3Args is the ACCESS argument body.
type Access3Args struct {
	Handle []byte
	Access uint32
}

func (a *Access3Args) Encode(e *Encoder) {
	e.Opaque(a.Handle)
	e.Uint32(a.Access)
}

func (a *Access3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	a.Access, err = d.Uint32()
	return err
}

// Access3Res is the ACCESS result body.
type Access3Res struct {
	Status  Status
	ObjAttr PostOpAttr
	Access  uint32
}

func (r *Access3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.ObjAttr.Encode(e)
	if r.Status == StatusOK {
		e.Uint32(r.Access)
	}
}

func (r *Access3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.ObjAttr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	r.Access, err = d.Uint32()
	return err
}

// Readlink3Res is the READLINK result body.
type Readlink3Res struct {
	Status  Status
	SymAttr PostOpAttr
	Target  string
}

func (r *Readlink3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.SymAttr.Encode(e)
	if r.Status == StatusOK {
		e.String(r.Target)
	}
}

func (r *Readlink3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.SymAttr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	r.Target, err = d.String(PathMaxSize)
	return err
}

// Read3Args is the READ argument body.
type Read3Args struct {
	Handle []byte
	Offset uint64
	Count  uint32
}

func (a *Read3Args) Encode(e *Encoder) {
	e.Opaque(a.Handle)
	e.Uint64(a.Offset)
	e.Uint32(a.Count)
}

func (a *Read3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Offset, err = d.Uint64(); err != nil {
		return err
	}
	a.Count, err = d.Uint32()
	return err
}

// Read3Res is the READ result body.
type Read3Res struct {
	Status   Status
	FileAttr PostOpAttr
	Count    uint32
	EOF      bool
	Data     []byte
}

func (r *Read3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.FileAttr.Encode(e)
	if r.Status == StatusOK {
		e.Uint32(r.Count)
		e.Bool(r.EOF)
		e.Opaque(r.Data)
	}
}

func (r *Read3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.FileAttr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	if r.Count, err = d.Uint32(); err != nil {
		return err
	}
	if r.EOF, err = d.Bool(); err != nil {
		return err
	}
	r.Data, err = d.Opaque(0)
	return err
}

// Write3Args is the WRITE argument body, decoded only to reject it.
type Write3Args struct {
	Handle []byte
	Offset uint64
	Count  uint32
	Stable uint32
	Data   []byte
}

func (a *Write3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Offset, err = d.Uint64(); err != nil {
		return err
	}
	if a.Count, err = d.Uint32(); err != nil {
		return err
	}
	if a.Stable, err = d.Uint32(); err != nil {
		return err
	}
	a.Data, err = d.Opaque(0)
	return err
}

// Create3Args is the CREATE argument body, decoded only to reject it.
type Create3Args struct {
	Dir  []byte
	Name string
	Mode uint32
	Attr Sattr3
	Verf []byte
}

// createhow3 discriminants.
const (
	CreateUnchecked = 0
	CreateGuarded   = 1
	CreateExclusive = 2
)

func (a *Create3Args) Decode(d *Decoder) error {
	var err error
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Name, err = d.String(NameMaxSize); err != nil {
		return err
	}
	if a.Mode, err = d.Uint32(); err != nil {
		return err
	}
	switch a.Mode {
	case CreateUnchecked, CreateGuarded:
		return a.Attr.Decode(d)
	case CreateExclusive:
		a.Verf, err = d.OpaqueFixed(WriteVerfSize)
		return err
	}
	return fmt.Errorf("%w: create mode %d", ErrMalformed, a.Mode)
}

// Mkdir3Args is the MKDIR argument body, decoded only to reject it.
type Mkdir3Args struct {
	Dir  []byte
	Name string
	Attr Sattr3
}

func (a *Mkdir3Args) Decode(d *Decoder) error {
	var err error
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Name, err = d.String(NameMaxSize); err != nil {
		return err
	}
	return a.Attr.Decode(d)
}

// Symlink3Args is the SYMLINK argument body, decoded only to reject it.
type Symlink3Args struct {
	Dir    []byte
	Name   string
	Attr   Sattr3
	Target string
}

func (a *Symlink3Args) Decode(d *Decoder) error {
	var err error
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Name, err = d.String(NameMaxSize); err != nil {
		return err
	}
	if err = a.Attr.Decode(d); err != nil {
		return err
	}
	a.Target, err = d.String(PathMaxSize)
	return err
}

// Mknod3Args is the MKNOD argument body, decoded only to reject it.
type Mknod3Args struct {
	Dir  []byte
	Name string
	Type uint32
}

func (a *Mknod3Args) Decode(d *Decoder) error {
	var err error
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Name, err = d.String(NameMaxSize); err != nil {
		return err
	}
	// The device and attribute payload varies by type and is irrelevant
	// to a read-only server; leave it unread.
	a.Type, err = d.Uint32()
	return err
}

// Rename3Args is the RENAME argument body, decoded only to reject it.
type Rename3Args struct {
	FromDir  []byte
	FromName string
	ToDir    []byte
	ToName   string
}

func (a *Rename3Args) Decode(d *Decoder) error {
	var err error
	if a.FromDir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.FromName, err = d.String(NameMaxSize); err != nil {
		return err
	}
	if a.ToDir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	a.ToName, err = d.String(NameMaxSize)
	return err
}

// Link3Args is the LINK argument body, decoded only to reject it.
type Link3Args struct {
	Handle []byte
	Dir    []byte
	Name   string
}

func (a *Link3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Dir, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	a.Name, err = d.String(NameMaxSize)
	return err
}

// SetAttr3Args is the SETATTR argument body, decoded only to reject it.
type SetAttr3Args struct {
	Handle     []byte
	Attr       Sattr3
	GuardCheck bool
	GuardCtime FileTime
}

func (a *SetAttr3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if err = a.Attr.Decode(d); err != nil {
		return err
	}
	if a.GuardCheck, err = d.Bool(); err != nil {
		return err
	}
	if !a.GuardCheck {
		return nil
	}
	return a.GuardCtime.Decode(d)
}

// Commit3Args is the COMMIT argument body, decoded only to reject it.
type Commit3Args struct {
	Handle []byte
	Offset uint64
	Count  uint32
}

func (a *Commit3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Offset, err = d.Uint64(); err != nil {
		return err
	}
	a.Count, err = d.Uint32()
	return err
}

// ReadDir3Args is the READDIR argument body.
type ReadDir3Args struct {
	Handle     []byte
	Cookie     uint64
	CookieVerf []byte
	Count      uint32
}

func (a *ReadDir3Args) Encode(e *Encoder) {
	e.Opaque(a.Handle)
	e.Uint64(a.Cookie)
	e.OpaqueFixed(cookieVerfOrZero(a.CookieVerf))
	e.Uint32(a.Count)
}

func cookieVerfOrZero(verf []byte) []byte {
	if len(verf) != CookieVerfSize {
		return make([]byte, CookieVerfSize)
	}
	return verf
}

func (a *ReadDir3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Cookie, err = d.Uint64(); err != nil {
		return err
	}
	if a.CookieVerf, err = d.OpaqueFixed(CookieVerfSize); err != nil {
		return err
	}
	a.Count, err = d.Uint32()
	return err
}

// DirEntry3 is one READDIR reply entry.
type DirEntry3 struct {
	FileID uint64
	Name   string
	Cookie uint64
}

// ReadDir3Res is the READDIR result body.
type ReadDir3Res struct {
	Status     Status
	DirAttr    PostOpAttr
	CookieVerf []byte
	Entries    []DirEntry3
	EOF        bool
}

func (r *ReadDir3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.DirAttr.Encode(e)
	if r.Status != StatusOK {
		return
	}
	e.OpaqueFixed(cookieVerfOrZero(r.CookieVerf))
	for i := range r.Entries {
		e.Bool(true)
		e.Uint64(r.Entries[i].FileID)
		e.String(r.Entries[i].Name)
		e.Uint64(r.Entries[i].Cookie)
	}
	e.Bool(false)
	e.Bool(r.EOF)
}

func (r *ReadDir3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.DirAttr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	if r.CookieVerf, err = d.OpaqueFixed(CookieVerfSize); err != nil {
		return err
	}
	r.Entries = nil
	for {
		more, err := d.Bool()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		var ent DirEntry3
		if ent.FileID, err = d.Uint64(); err != nil {
			return err
		}
		if ent.Name, err = d.String(NameMaxSize); err != nil {
			return err
		}
		if ent.Cookie, err = d.Uint64(); err != nil {
			return err
		}
		r.Entries = append(r.Entries, ent)
	}
	r.EOF, err = d.Bool()
	return err
}

// ReadDirPlus3Args is the READDIRPLUS argument body.
type ReadDirPlus3Args struct {
	Handle     []byte
	Cookie     uint64
	CookieVerf []byte
	DirCount   uint32
	MaxCount   uint32
}

func (a *ReadDirPlus3Args) Encode(e *Encoder) {
	e.Opaque(a.Handle)
	e.Uint64(a.Cookie)
	e.OpaqueFixed(cookieVerfOrZero(a.CookieVerf))
	e.Uint32(a.DirCount)
	e.Uint32(a.MaxCount)
}

func (a *ReadDirPlus3Args) Decode(d *Decoder) error {
	var err error
	if a.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	if a.Cookie, err = d.Uint64(); err != nil {
		return err
	}
	if a.CookieVerf, err = d.OpaqueFixed(CookieVerfSize); err != nil {
		return err
	}
	if a.DirCount, err = d.Uint32(); err != nil {
		return err
	}
	a.MaxCount, err = d.Uint32()
	return err
}

// DirEntryPlus3 is one READDIRPLUS reply entry.
type DirEntryPlus3 struct {
	FileID uint64
	Name   string
	Cookie uint64
	Attr   PostOpAttr
	FH     PostOpFH3
}

// ReadDirPlus3Res is the READDIRPLUS result body.
type ReadDirPlus3Res struct {
	Status     Status
	DirAttr    PostOpAttr
	CookieVerf []byte
	Entries    []DirEntryPlus3
	EOF        bool
}

func (r *ReadDirPlus3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.DirAttr.Encode(e)
	if r.Status != StatusOK {
		return
	}
	e.OpaqueFixed(cookieVerfOrZero(r.CookieVerf))
	for i := range r.Entries {
		ent := &r.Entries[i]
		e.Bool(true)
		e.Uint64(ent.FileID)
		e.String(ent.Name)
		e.Uint64(ent.Cookie)
		ent.Attr.Encode(e)
		ent.FH.Encode(e)
	}
	e.Bool(false)
	e.Bool(r.EOF)
}

func (r *ReadDirPlus3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.DirAttr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	if r.CookieVerf, err = d.OpaqueFixed(CookieVerfSize); err != nil {
		return err
	}
	r.Entries = nil
	for {
		more, err := d.Bool()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		var ent DirEntryPlus3
		if ent.FileID, err = d.Uint64(); err != nil {
			return err
		}
		if ent.Name, err = d.String(NameMaxSize); err != nil {
			return err
		}
		if ent.Cookie, err = d.Uint64(); err != nil {
			return err
		}
		if err = ent.Attr.Decode(d); err != nil {
			return err
		}
		if err = ent.FH.Decode(d); err != nil {
			return err
		}
		r.Entries = append(r.Entries, ent)
	}
	r.EOF, err = d.Bool()
	return err
}

// FSStat3Res is the FSSTAT result body.
type FSStat3Res struct {
	Status     Status
	Attr       PostOpAttr
	TotalBytes uint64
	FreeBytes  uint64
	AvailBytes uint64
	TotalFiles uint64
	FreeFiles  uint64
	AvailFiles uint64
	Invarsec   uint32
}

func (r *FSStat3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.Attr.Encode(e)
	if r.Status != StatusOK {
		return
	}
	e.Uint64(r.TotalBytes)
	e.Uint64(r.FreeBytes)
	e.Uint64(r.AvailBytes)
	e.Uint64(r.TotalFiles)
	e.Uint64(r.FreeFiles)
	e.Uint64(r.AvailFiles)
	e.Uint32(r.Invarsec)
}

func (r *FSStat3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.Attr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	fields := []*uint64{&r.TotalBytes, &r.FreeBytes, &r.AvailBytes, &r.TotalFiles, &r.FreeFiles, &r.AvailFiles}
	for _, f := range fields {
		if *f, err = d.Uint64(); err != nil {
			return err
		}
	}
	r.Invarsec, err = d.Uint32()
	return err
}

// FSInfo3Res is the FSINFO result body.
type FSInfo3Res struct {
	Status      Status
	Attr        PostOpAttr
	RTMax       uint32
	RTPref      uint32
	RTMult      uint32
	WTMax       uint32
	WTPref      uint32
	WTMult      uint32
	DTPref      uint32
	MaxFileSize uint64
	TimeDelta   FileTime
	Properties  uint32
}

func (r *FSInfo3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.Attr.Encode(e)
	if r.Status != StatusOK {
		return
	}
	e.Uint32(r.RTMax)
	e.Uint32(r.RTPref)
	e.Uint32(r.RTMult)
	e.Uint32(r.WTMax)
	e.Uint32(r.WTPref)
	e.Uint32(r.WTMult)
	e.Uint32(r.DTPref)
	e.Uint64(r.MaxFileSize)
	r.TimeDelta.Encode(e)
	e.Uint32(r.Properties)
}

func (r *FSInfo3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.Attr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	fields := []*uint32{&r.RTMax, &r.RTPref, &r.RTMult, &r.WTMax, &r.WTPref, &r.WTMult, &r.DTPref}
	for _, f := range fields {
		if *f, err = d.Uint32(); err != nil {
			return err
		}
	}
	if r.MaxFileSize, err = d.Uint64(); err != nil {
		return err
	}
	if err = r.TimeDelta.Decode(d); err != nil {
		return err
	}
	r.Properties, err = d.Uint32()
	return err
}

// PathConf3Res is the PATHCONF result body.
type PathConf3Res struct {
	Status          Status
	Attr            PostOpAttr
	LinkMax         uint32
	NameMax         uint32
	NoTrunc         bool
	ChownRestricted bool
	CaseInsensitive bool
	CasePreserving  bool
}

func (r *PathConf3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	r.Attr.Encode(e)
	if r.Status != StatusOK {
		return
	}
	e.Uint32(r.LinkMax)
	e.Uint32(r.NameMax)
	e.Bool(r.NoTrunc)
	e.Bool(r.ChownRestricted)
	e.Bool(r.CaseInsensitive)
	e.Bool(r.CasePreserving)
}

func (r *PathConf3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = Status(st)
	if err = r.Attr.Decode(d); err != nil {
		return err
	}
	if r.Status != StatusOK {
		return nil
	}
	if r.LinkMax, err = d.Uint32(); err != nil {
		return err
	}
	if r.NameMax, err = d.Uint32(); err != nil {
		return err
	}
	if r.NoTrunc, err = d.Bool(); err != nil {
		return err
	}
	if r.ChownRestricted, err = d.Bool(); err != nil {
		return err
	}
	if r.CaseInsensitive, err = d.Bool(); err != nil {
		return err
	}
	r.CasePreserving, err = d.Bool()
	return err
}

// Mount3Res is the MNT result body.
type Mount3Res struct {
	Status      MountStatus
	Handle      []byte
	AuthFlavors []uint32
}

func (r *Mount3Res) Encode(e *Encoder) {
	e.Uint32(uint32(r.Status))
	if r.Status != MntOK {
		return
	}
	e.Opaque(r.Handle)
	e.Uint32(uint32(len(r.AuthFlavors)))
	for _, f := range r.AuthFlavors {
		e.Uint32(f)
	}
}

func (r *Mount3Res) Decode(d *Decoder) error {
	st, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Status = MountStatus(st)
	if r.Status != MntOK {
		return nil
	}
	if r.Handle, err = d.Opaque(HandleMaxSize); err != nil {
		return err
	}
	n, err := d.Uint32()
	if err != nil {
		return err
	}
	if n > 16 {
		return fmt.Errorf("%w: %d auth flavors", ErrMalformed, n)
	}
	r.AuthFlavors = make([]uint32, n)
	for i := range r.AuthFlavors {
		if r.AuthFlavors[i], err = d.Uint32(); err != nil {
			return err
		}
	}
	return nil
}

// ExportEntry is one entry of the EXPORT reply list.
type ExportEntry struct {
	Dir    string
	Groups []string
}

// EncodeExports writes an EXPORT reply list.
func EncodeExports(e *Encoder, exports []ExportEntry) {
	for _, ex := range exports {
		e.Bool(true)
		e.String(ex.Dir)
		for _, g := range ex.Groups {
			e.Bool(true)
			e.String(g)
		}
		e.Bool(false)
	}
	e.Bool(false)
}

// DecodeExports parses an EXPORT reply list.
func DecodeExports(d *Decoder) ([]ExportEntry, error) {
	var out []ExportEntry
	for {
		more, err := d.Bool()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		var ex ExportEntry
		if ex.Dir, err = d.String(PathMaxSize); err != nil {
			return nil, err
		}
		for {
			g, err := d.Bool()
			if err != nil {
				return nil, err
			}
			if !g {
				break
			}
			name, err := d.String(NameMaxSize)
			if err != nil {
				return nil, err
			}
			ex.Groups = append(ex.Groups, name)
		}
		out = append(out, ex)
	}
}
