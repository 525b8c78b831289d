package mysql

const insertReviewSQL = `
INSERT INTO reviews
  (id, status, featured, rating, submitted_at, doc)
VALUES
  (?, ?, ?, ?, ?, ?)
`

const getReviewSQL = `SELECT status, doc FROM reviews WHERE id = ?`

// Row lock held until the surrounding transaction ends.
const lockReviewSQL = `SELECT status, doc FROM reviews WHERE id = ? FOR UPDATE`

const updateReviewSQL = `
UPDATE reviews SET
  status   = ?,
  featured = ?,
  rating   = ?,
  doc      = ?
WHERE id = ?
`

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ? AND status = ?`

// Newest first: ids start with the submission time in millis.
const publishedSQL = `
SELECT doc
FROM reviews
WHERE status = 'approved'
ORDER BY featured DESC, id DESC
`

const countByStatusSQL = `SELECT status, COUNT(*) FROM reviews GROUP BY status`

const approvedAggSQL = `
SELECT COALESCE(SUM(featured), 0), COALESCE(AVG(rating), 0)
FROM reviews
WHERE status = 'approved'
`

const insertActionSQL = `
INSERT INTO admin_actions (review_id, action, created_at, entry)
VALUES (?, ?, ?, ?)
`

const recentActionsSQL = `SELECT entry FROM admin_actions ORDER BY seq DESC LIMIT ?`
