package nfs

// ONC RPC program numbers and the versions served.
const (
	ProgramNFS  = 100003
	VersionNFS  = 3
	ProgramMnt  = 100005
	VersionMnt  = 3
)

// NFSv3 procedure numbers (RFC 1813 section 3).
const (
	Proc3Null        = 0
	Proc3GetAttr     = 1
	Proc3SetAttr     = 2
	Proc3Lookup      = 3
	Proc3Access      = 4
	Proc3Readlink    = 5
	Proc3Read        = 6
	Proc3Write       = 7
	Proc3Create      = 8
	Proc3Mkdir       = 9
	Proc3Symlink     = 10
	Proc3Mknod       = 11
	Proc3Remove      = 12
	Proc3Rmdir       = 13
	Proc3Rename      = 14
	Proc3Link        = 15
	Proc3ReadDir     = 16
	Proc3ReadDirPlus = 17
	Proc3FSStat      = 18
	Proc3FSInfo      = 19
	Proc3PathConf    = 20
	Proc3Commit      = 21
)

// MOUNT v3 procedure numbers (RFC 1813 section 5).
const (
	MntProcNull    = 0
	MntProcMnt     = 1
	MntProcDump    = 2
	MntProcUmnt    = 3
	MntProcUmntAll = 4
	MntProcExport  = 5
)

// Status is an NFSv3 status code (nfsstat3).
type Status uint32

// Status codes from RFC 1813 section 2.6.
const (
	StatusOK          Status = 0
	StatusPerm        Status = 1
	StatusNoEnt       Status = 2
	StatusIO          Status = 5
	StatusNXIO        Status = 6
	StatusAcces       Status = 13
	StatusExist       Status = 17
	StatusXDev        Status = 18
	StatusNoDev       Status = 19
	StatusNotDir      Status = 20
	StatusIsDir       Status = 21
	StatusInval       Status = 22
	StatusFBig        Status = 27
	StatusNoSpc       Status = 28
	StatusROFS        Status = 30
	StatusMLink       Status = 31
	StatusNameTooLong Status = 63
	StatusNotEmpty    Status = 66
	StatusDQuot       Status = 69
	StatusStale       Status = 70
	StatusRemote      Status = 71
	StatusBadHandle   Status = 10001
	StatusNotSync     Status = 10002
	StatusBadCookie   Status = 10003
	StatusNotSupp     Status = 10004
	StatusTooSmall    Status = 10005
	StatusServerFault Status = 10006
	StatusBadType     Status = 10007
	StatusJukebox     Status = 10008
)

// String returns the RFC name of the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "NFS3_OK"
	case StatusPerm:
		return "NFS3ERR_PERM"
	case StatusNoEnt:
		return "NFS3ERR_NOENT"
	case StatusIO:
		return "NFS3ERR_IO"
	case StatusNXIO:
		return "NFS3ERR_NXIO"
	case StatusAcces:
		return "NFS3ERR_ACCES"
	case StatusExist:
		return "NFS3ERR_EXIST"
	case StatusXDev:
		return "NFS3ERR_XDEV"
	case StatusNoDev:
		return "NFS3ERR_NODEV"
	case StatusNotDir:
		return "NFS3ERR_NOTDIR"
	case StatusIsDir:
		return "NFS3ERR_ISDIR"
	case StatusInval:
		return "NFS3ERR_INVAL"
	case StatusFBig:
		return "NFS3ERR_FBIG"
	case StatusNoSpc:
		return "NFS3ERR_NOSPC"
	case StatusROFS:
		return "NFS3ERR_ROFS"
	case StatusMLink:
		return "NFS3ERR_MLINK"
	case StatusNameTooLong:
		return "NFS3ERR_NAMETOOLONG"
	case StatusNotEmpty:
		return "NFS3ERR_NOTEMPTY"
	case StatusDQuot:
		return "NFS3ERR_DQUOT"
	case StatusStale:
		return "NFS3ERR_STALE"
	case StatusRemote:
		return "NFS3ERR_REMOTE"
	case StatusBadHandle:
		return "NFS3ERR_BADHANDLE"
	case StatusNotSync:
		return "NFS3ERR_NOT_SYNC"
	case StatusBadCookie:
		return "NFS3ERR_BAD_COOKIE"
	case StatusNotSupp:
		return "NFS3ERR_NOTSUPP"
	case StatusTooSmall:
		return "NFS3ERR_TOOSMALL"
	case StatusServerFault:
		return "NFS3ERR_SERVERFAULT"
	case StatusBadType:
		return "NFS3ERR_BADTYPE"
	case StatusJukebox:
		return "NFS3ERR_JUKEBOX"
	default:
		return "NFS3ERR_UNKNOWN"
	}
}

// MountStatus is a MOUNT program status code (mountstat3).
type MountStatus uint32

const (
	MntOK          MountStatus = 0
	MntErrPerm     MountStatus = 1
	MntErrNoEnt    MountStatus = 2
	MntErrIO       MountStatus = 5
	MntErrAcces    MountStatus = 13
	MntErrNotDir   MountStatus = 20
	MntErrInval    MountStatus = 22
	MntErrTooLong  MountStatus = 63
	MntErrNotSupp  MountStatus = 10004
	MntErrSrvFault MountStatus = 10006
)

// File type codes (ftype3).
const (
	TypeReg  = 1
	TypeDir  = 2
	TypeBlk  = 3
	TypeChr  = 4
	TypeLnk  = 5
	TypeSock = 6
	TypeFifo = 7
)

// ACCESS procedure permission bits.
const (
	AccessRead    = 0x0001
	AccessLookup  = 0x0002
	AccessModify  = 0x0004
	AccessExtend  = 0x0008
	AccessDelete  = 0x0010
	AccessExecute = 0x0020
)

// FSINFO properties bits.
const (
	FSFLink        = 0x0001
	FSFSymlink     = 0x0002
	FSFHomogeneous = 0x0008
	FSFCanSetTime  = 0x0010
)

// Protocol size limits.
const (
	// HandleMaxSize is the NFSv3 limit on file handle length.
	HandleMaxSize = 64

	// NameMaxSize bounds accepted file names on the wire. Longer names
	// are answered with NFS3ERR_NAMETOOLONG by the procedures, but the
	// decoder needs a hard cap to refuse absurd lengths outright.
	NameMaxSize = 4096

	// PathMaxSize bounds symlink targets and mount paths.
	PathMaxSize = 4096

	// CookieVerfSize is the size of the READDIR cookie verifier.
	CookieVerfSize = 8

	// WriteVerfSize is the size of the WRITE/COMMIT verifier.
	WriteVerfSize = 8
)

// Identity assigned to requests without usable AUTH_SYS credentials.
const (
	NobodyUID = 65534
	NobodyGID = 65534
)
