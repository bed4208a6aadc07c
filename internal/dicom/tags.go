package dicom

import "fmt"

// Tag identifies a data element by its group and element numbers.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("%04X,%04X", t.Group, t.Element)
}

// Study and series identity tags.
var (
	TagPatientID         = Tag{0x0010, 0x0020}
	TagPatientName       = Tag{0x0010, 0x0010}
	TagStudyDate         = Tag{0x0008, 0x0020}
	TagStudyTime         = Tag{0x0008, 0x0030}
	TagAccessionNumber   = Tag{0x0008, 0x0050}
	TagStudyID           = Tag{0x0020, 0x0010}
	TagStudyInstanceUID  = Tag{0x0020, 0x000D}
	TagStudyDescription  = Tag{0x0008, 0x1030}
	TagModality          = Tag{0x0008, 0x0060}
	TagSeriesInstanceUID = Tag{0x0020, 0x000E}
	TagSeriesNumber      = Tag{0x0020, 0x0011}
	TagSeriesDescription = Tag{0x0008, 0x103E}
	TagSOPInstanceUID    = Tag{0x0008, 0x0018}
)

// commonTags lists the metadata fields extracted from a study file, in the
// order they appear in a report. All of them live in groups 0008-0020, so a
// scan can stop early once past that range.
var commonTags = []struct {
	Name string
	Tag  Tag
}{
	{"PatientID", TagPatientID},
	{"PatientName", TagPatientName},
	{"StudyDate", TagStudyDate},
	{"StudyTime", TagStudyTime},
	{"AccessionNumber", TagAccessionNumber},
	{"StudyID", TagStudyID},
	{"StudyInstanceUID", TagStudyInstanceUID},
	{"StudyDescription", TagStudyDescription},
	{"Modality", TagModality},
	{"SeriesInstanceUID", TagSeriesInstanceUID},
	{"SeriesNumber", TagSeriesNumber},
	{"SeriesDescription", TagSeriesDescription},
	{"SOPInstanceUID", TagSOPInstanceUID},
}

// lastCommonGroup is the highest group number any common tag lives in.
const lastCommonGroup = 0x0020
